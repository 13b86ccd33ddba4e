package main

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	statusCommandName = "valheim-status"
	statusCommandDesc = "Gets the status of the valheim server"

	dumbReply    = "Beep Boop I'm a bot and I'm kinda dumb xD. Try asking me for server status :)"
	unknownReply = "What?"
)

type trigger int

const (
	triggerIgnore trigger = iota
	triggerMentionStatus
	triggerMentionOther
	triggerKnownCommand
	triggerUnknownCommand
)

func (t trigger) String() string {
	switch t {
	case triggerMentionStatus:
		return "mention-status"
	case triggerMentionOther:
		return "mention-other"
	case triggerKnownCommand:
		return "known-command"
	case triggerUnknownCommand:
		return "unknown-command"
	default:
		return "ignore"
	}
}

// event is the transport-independent view of an incoming message or slash command.
type event struct {
	isCommand  bool
	command    string
	fromBot    bool
	mentionsMe bool
	content    string
}

// action is what the adapter should reply with.
type action struct {
	status    bool   // reply with the rendered status report
	text      string // fixed reply when status is false
	ephemeral bool
}

func classify(ev event) trigger {
	if ev.isCommand {
		if ev.command == statusCommandName {
			return triggerKnownCommand
		}
		return triggerUnknownCommand
	}
	if ev.fromBot || !ev.mentionsMe {
		return triggerIgnore
	}
	if strings.Contains(strings.ToLower(ev.content), "status") {
		return triggerMentionStatus
	}
	return triggerMentionOther
}

func actionFor(t trigger) (action, bool) {
	switch t {
	case triggerMentionStatus, triggerKnownCommand:
		return action{status: true}, true
	case triggerMentionOther:
		return action{text: dumbReply}, true
	case triggerUnknownCommand:
		return action{text: unknownReply, ephemeral: true}, true
	default:
		return action{}, false
	}
}

func eventFromMessage(m *discordgo.Message, selfID string) event {
	ev := event{content: m.Content}
	if m.Author != nil {
		ev.fromBot = m.Author.Bot
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			ev.mentionsMe = true
			break
		}
	}
	return ev
}

func eventFromInteraction(i *discordgo.Interaction) (event, bool) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return event{}, false
	}
	return event{isCommand: true, command: i.ApplicationCommandData().Name}, true
}
