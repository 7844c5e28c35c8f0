package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// CommandPrefix marks a line as a command.
const CommandPrefix = "/"

// nameClaimTimeout bounds the credential lookup behind /nick.
const nameClaimTimeout = 5 * time.Second

// Dispatch kinds reported to the observer.
const (
	KindChat    = "chat"
	KindCommand = "command"
	KindUnknown = "unknown"
	KindIgnored = "ignored"
)

// Command is a parsed line. Name is lower-cased and empty for chat lines.
type Command struct {
	Name string
	Args []string
	Rest string // text after the command name, untrimmed of inner spacing
}

// ParseLine splits a line into a command and its arguments. ok is false
// for chat lines.
func ParseLine(line string) (Command, bool) {
	if !strings.HasPrefix(line, CommandPrefix) {
		return Command{}, false
	}
	body := strings.TrimLeftFunc(strings.TrimPrefix(line, CommandPrefix), unicode.IsSpace)
	name, rest := splitWord(body)
	return Command{
		Name: strings.ToLower(strings.TrimSpace(name)),
		Args: strings.Fields(rest),
		Rest: strings.TrimSpace(rest),
	}, true
}

// splitWord cuts s at its first whitespace rune.
func splitWord(s string) (head, tail string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// HelpText lists the commands, one per line.
var HelpText = []string{
	"Commands:",
	"/help - show this list",
	"/list - list channels",
	"/join <channel> [secret] - join or create a channel",
	"/leave - leave the current channel",
	"/users - list online users",
	"/nick <newname> - change your username",
	"/status online|away - set your status",
	"/msg <user> <message> - send a private message",
	"/me <action> - describe an action to your channel",
	"/quit - disconnect",
}

type handlerFunc func(d *Dispatcher, s SessionInfo, cmd Command) bool

// NameGuard keeps live renames off registered accounts. ClaimName runs
// claim only when name is not a stored account, serialized with
// registrations, and returns ErrNameTaken otherwise.
type NameGuard interface {
	ClaimName(ctx context.Context, name string, claim func() error) error
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNameGuard checks /nick targets against stored accounts.
func WithNameGuard(g NameGuard) DispatcherOption {
	return func(d *Dispatcher) { d.names = g }
}

// Dispatcher turns client lines into hub operations.
type Dispatcher struct {
	hub      *Hub
	log      *zerolog.Logger
	names    NameGuard
	commands map[string]handlerFunc
}

// NewDispatcher creates a dispatcher bound to hub.
func NewDispatcher(hub *Hub, logger *zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	d := &Dispatcher{
		hub: hub,
		log: logger,
		commands: map[string]handlerFunc{
			"help":   (*Dispatcher).help,
			"list":   (*Dispatcher).list,
			"join":   (*Dispatcher).join,
			"leave":  (*Dispatcher).leave,
			"users":  (*Dispatcher).users,
			"nick":   (*Dispatcher).nick,
			"status": (*Dispatcher).status,
			"quit":   (*Dispatcher).quit,
			"msg":    (*Dispatcher).msg,
			"me":     (*Dispatcher).me,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one line from session id. It reports true when the
// connection should be torn down, either on /quit or because the session
// no longer exists.
func (d *Dispatcher) Handle(id, line string) bool {
	s, ok := d.hub.Session(id)
	if !ok {
		return true
	}

	if strings.TrimSpace(line) == "" {
		d.hub.obs.Dispatched(KindIgnored)
		return false
	}

	cmd, isCommand := ParseLine(line)
	if !isCommand {
		d.hub.obs.Dispatched(KindChat)
		d.chat(s, line)
		return false
	}

	h, known := d.commands[cmd.Name]
	if !known {
		d.hub.obs.Dispatched(KindUnknown)
		d.reply(s, fmt.Sprintf("Unknown command /%s. Type /help for a list of commands.", cmd.Name))
		return false
	}
	d.hub.obs.Dispatched(cmd.Name)
	d.log.Debug().Str("session_id", id).Str("cmd", cmd.Name).Msg("command")
	return h(d, s, cmd)
}

func (d *Dispatcher) reply(s SessionInfo, text string) {
	if err := d.hub.Reply(s.ID, text); err != nil {
		d.log.Debug().Err(err).Str("session_id", s.ID).Msg("reply dropped")
	}
}

func (d *Dispatcher) chat(s SessionInfo, text string) {
	if s.Channel == "" {
		d.reply(s, "You must join a channel first. Type /list or /join <channel>.")
		return
	}
	d.hub.Broadcast(fmt.Sprintf("%s: %s", s.Username, text), s.ID, s.Channel)
}

func (d *Dispatcher) help(s SessionInfo, _ Command) bool {
	for _, line := range HelpText {
		d.reply(s, line)
	}
	return false
}

func (d *Dispatcher) list(s SessionInfo, _ Command) bool {
	channels := d.hub.Channels()
	if len(channels) == 0 {
		d.reply(s, "No channels yet. Create one with /join <channel>.")
		return false
	}
	parts := make([]string, len(channels))
	for i, ch := range channels {
		if ch.Protected {
			parts[i] = fmt.Sprintf("%s [%d, locked]", ch.Name, ch.Members)
		} else {
			parts[i] = fmt.Sprintf("%s [%d]", ch.Name, ch.Members)
		}
	}
	d.reply(s, "Available channels: "+strings.Join(parts, ", "))
	return false
}

func (d *Dispatcher) join(s SessionInfo, cmd Command) bool {
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		d.reply(s, "Usage: /join <channel> [secret]")
		return false
	}
	name, secret := cmd.Args[0], ""
	if len(cmd.Args) == 2 {
		secret = cmd.Args[1]
	}

	res, err := d.hub.Join(s.ID, name, secret)
	switch {
	case errors.Is(err, ErrWrongSecret):
		d.reply(s, fmt.Sprintf("Wrong secret for channel %s.", name))
		return false
	case errors.Is(err, ErrInvalidName):
		d.reply(s, "Invalid channel name.")
		return false
	case err != nil:
		return d.fail(s, err)
	}
	if res.Already {
		d.reply(s, fmt.Sprintf("You are already in %s.", name))
		return false
	}

	if res.Previous != "" {
		d.hub.Broadcast(fmt.Sprintf("%s left %s.", s.Username, res.Previous), "", res.Previous)
	}
	d.hub.Broadcast(fmt.Sprintf("%s joined %s.", s.Username, res.Channel), "", res.Channel)
	return false
}

func (d *Dispatcher) leave(s SessionInfo, _ Command) bool {
	left, err := d.hub.Leave(s.ID)
	if errors.Is(err, ErrNotMember) {
		d.reply(s, "You are not in a channel.")
		return false
	}
	if err != nil {
		return d.fail(s, err)
	}
	d.reply(s, fmt.Sprintf("You left %s.", left))
	d.hub.Broadcast(fmt.Sprintf("%s left %s.", s.Username, left), "", left)
	return false
}

func (d *Dispatcher) users(s SessionInfo, _ Command) bool {
	users := d.hub.Users()
	parts := make([]string, len(users))
	for i, u := range users {
		parts[i] = fmt.Sprintf("%s (%s)", u.Username, u.Status)
	}
	d.reply(s, "Online users: "+strings.Join(parts, ", "))
	return false
}

func (d *Dispatcher) nick(s SessionInfo, cmd Command) bool {
	if len(cmd.Args) != 1 {
		d.reply(s, "Usage: /nick <newname>")
		return false
	}
	newName := cmd.Args[0]
	old, err := d.rename(s, newName)
	switch {
	case errors.Is(err, ErrNameTaken):
		d.reply(s, fmt.Sprintf("Username %s is already taken.", newName))
		return false
	case errors.Is(err, ErrInvalidUsername):
		d.reply(s, "Invalid username.")
		return false
	case err != nil:
		return d.fail(s, err)
	}
	if old == newName {
		d.reply(s, fmt.Sprintf("You are already %s.", newName))
		return false
	}
	d.hub.Broadcast(fmt.Sprintf("%s is now known as %s.", old, newName), "", "")
	return false
}

// rename takes newName for the session. Only the session's own login name
// may skip the stored-account check.
func (d *Dispatcher) rename(s SessionInfo, newName string) (string, error) {
	var old string
	claim := func() error {
		var err error
		old, err = d.hub.Rename(s.ID, newName)
		return err
	}
	if d.names == nil || newName == s.Account {
		err := claim()
		return old, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), nameClaimTimeout)
	defer cancel()
	if err := d.names.ClaimName(ctx, newName, claim); err != nil {
		return "", err
	}
	return old, nil
}

func (d *Dispatcher) status(s SessionInfo, cmd Command) bool {
	if len(cmd.Args) != 1 {
		d.reply(s, "Usage: /status online|away")
		return false
	}
	st, err := ParseStatus(cmd.Args[0])
	if err != nil {
		d.reply(s, "Usage: /status online|away")
		return false
	}
	if err := d.hub.SetStatus(s.ID, st); err != nil {
		return d.fail(s, err)
	}
	d.reply(s, fmt.Sprintf("Status set to %s.", st))
	return false
}

func (d *Dispatcher) quit(s SessionInfo, _ Command) bool {
	d.reply(s, "Goodbye.")
	return true
}

func (d *Dispatcher) msg(s SessionInfo, cmd Command) bool {
	to, text := splitWord(cmd.Rest)
	text = strings.TrimSpace(text)
	if to == "" || text == "" {
		d.reply(s, "Usage: /msg <user> <message>")
		return false
	}
	if _, err := d.hub.Whisper(s.ID, to, text); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			d.reply(s, fmt.Sprintf("User %s not found.", to))
			return false
		}
		return d.fail(s, err)
	}
	d.reply(s, fmt.Sprintf("[private to %s] %s", to, text))
	return false
}

func (d *Dispatcher) me(s SessionInfo, cmd Command) bool {
	if cmd.Rest == "" {
		d.reply(s, "Usage: /me <action>")
		return false
	}
	if s.Channel == "" {
		d.reply(s, "You must join a channel first. Type /list or /join <channel>.")
		return false
	}
	d.hub.Broadcast(fmt.Sprintf("* %s %s", s.Username, cmd.Rest), "", s.Channel)
	return false
}

// fail handles errors that only occur when the session vanished mid-command.
func (d *Dispatcher) fail(s SessionInfo, err error) bool {
	if errors.Is(err, ErrSessionNotFound) {
		return true
	}
	d.log.Error().Err(err).Str("session_id", s.ID).Msg("command failed")
	d.reply(s, "Internal error.")
	return false
}
