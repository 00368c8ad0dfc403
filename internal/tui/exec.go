package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/schoolmsg/internal/attachment"
	"github.com/matheus3301/schoolmsg/internal/convview"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/tui/views"
	"go.uber.org/zap"
)

// execute runs a ':' command. Errors returned here are input problems;
// backend failures are reported asynchronously through the flash bar.
func (a *App) execute(cmd Command) error {
	args := cmd.Fields()
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "n", "notifications":
		a.push(pageNotifications)
	case "readall":
		a.engine.MarkAllRead()
		a.render()

	case "sort":
		if len(args) != 1 {
			return usage("sort recent|unread|name")
		}
		sort, err := parseSort(args[0])
		if err != nil {
			return err
		}
		a.async("sorted by "+string(sort), func(ctx context.Context) error { return a.store.SetSortBy(ctx, sort) })
	case "filter":
		f, err := parseFilters(args, a.store.Filters())
		if err != nil {
			return err
		}
		a.async("", func(ctx context.Context) error { return a.store.ApplyFilters(ctx, f) })
	case "search":
		a.async("", func(ctx context.Context) error { return a.store.SearchConversations(ctx, cmd.Args) })
	case "clear":
		a.async("filters cleared", func(ctx context.Context) error { return a.store.ClearFilters(ctx) })

	case "priority":
		if len(args) != 1 {
			return usage("priority low|normal|high|urgent")
		}
		p, err := parsePriority(args[0])
		if err != nil {
			return err
		}
		a.priority = p
		a.flash.Info("priority " + string(p))
	case "category":
		if len(args) != 1 {
			return usage("category <name>")
		}
		c, err := parseCategory(args[0])
		if err != nil {
			return err
		}
		a.category = c
		a.flash.Info("category " + string(c))

	case "quiet":
		return a.setQuietHours(args)

	case "broadcast":
		return a.broadcast(cmd.Args)
	case "unschedule":
		if len(args) != 1 {
			return usage("unschedule <id>")
		}
		a.async("schedule cancelled", func(ctx context.Context) error { return a.store.CancelScheduledMessage(ctx, args[0]) })

	default:
		return a.executeInThread(cmd)
	}
	return nil
}

// executeInThread runs commands that act on the open conversation.
func (a *App) executeInThread(cmd Command) error {
	v := a.thread.View()
	if v == nil || a.pages.Current() != pageThread {
		if isThreadCommand(cmd.Name) {
			return fmt.Errorf("%s: open a conversation first", cmd.Name)
		}
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
	id := v.ConversationID()
	self := a.store.Self().ID
	args := cmd.Fields()

	switch cmd.Name {
	case "read":
		a.async("marked read", v.MarkAsRead)
	case "unread":
		a.async("marked unread", func(ctx context.Context) error { return a.store.MarkAsUnread(ctx, id) })
	case "retry":
		m, ok := views.LastFailed(v.Messages())
		if !ok {
			return fmt.Errorf("retry: no failed message")
		}
		a.async("", func(ctx context.Context) error {
			_, err := a.store.RetryMessage(ctx, m.ID)
			return err
		})
	case "discard":
		m, ok := views.LastFailed(v.Messages())
		if !ok {
			return fmt.Errorf("discard: no failed message")
		}
		a.report(a.store.DiscardMessage(m.ID), "discarded")
	case "react", "unreact":
		if len(args) != 1 {
			return usage("%s <type>", cmd.Name)
		}
		a.react(args[0], cmd.Name == "react")
	case "pinmsg", "unpinmsg":
		m, ok := views.LastConfirmed(v.Messages(), self, false)
		if !ok {
			return fmt.Errorf("%s: no message", cmd.Name)
		}
		if cmd.Name == "pinmsg" {
			a.async("message pinned", func(ctx context.Context) error { return a.store.PinMessage(ctx, id, m.ID) })
		} else {
			a.async("message unpinned", func(ctx context.Context) error { return a.store.UnpinMessage(ctx, m.ID) })
		}
	case "forward":
		if len(args) == 0 {
			return usage("forward <conversation-id>...")
		}
		m, ok := views.LastConfirmed(v.Messages(), self, false)
		if !ok {
			return fmt.Errorf("forward: no message")
		}
		a.async(fmt.Sprintf("forwarded to %d", len(args)), func(ctx context.Context) error {
			return a.store.ForwardMessage(ctx, m.ID, args)
		})
	case "template":
		if len(args) != 1 {
			a.push(pageTemplates)
			return nil
		}
		a.insertTemplate(args[0])
	case "schedule":
		when, text, _ := strings.Cut(cmd.Args, " ")
		at, err := parseWhen(when, time.Now())
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return usage("schedule <HH:MM|+30m|RFC3339> <text>")
		}
		req := a.sendRequest(id, strings.TrimSpace(text))
		a.async("scheduled for "+at.Format("Jan 2 15:04"), func(ctx context.Context) error {
			_, err := a.store.ScheduleMessage(ctx, req, at)
			return err
		})
	case "attach":
		if len(args) == 0 {
			return usage("attach <path> [caption]")
		}
		caption := strings.TrimSpace(strings.TrimPrefix(cmd.Args, args[0]))
		return a.attach(v, args[0], caption)
	default:
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
	return nil
}

func isThreadCommand(name string) bool {
	switch name {
	case "read", "unread", "retry", "discard", "react", "unreact", "pinmsg", "unpinmsg",
		"forward", "template", "schedule", "attach":
		return true
	}
	return false
}

func (a *App) sendRequest(conversationID, content string) messaging.SendRequest {
	req := messaging.SendRequest{
		ConversationID: conversationID,
		Content:        content,
		Category:       a.category,
		Priority:       a.priority,
	}
	if c, ok := a.store.Conversation(conversationID); ok {
		req.Recipient = c.Recipient
	}
	return req
}

// attach validates the file, sends the caption as a message and uploads
// the file onto the confirmed message.
func (a *App) attach(v *convview.View, path, caption string) error {
	if a.opts.Uploader == nil || a.opts.Validator == nil {
		return fmt.Errorf("attach: uploads are not configured")
	}
	f, file, err := attachment.Open(path)
	if err != nil {
		return err
	}
	if res := a.opts.Validator.Validate(f); !res.Valid {
		file.Close()
		return fmt.Errorf("attach %s: %s", f.Name, res.Reason)
	}
	if caption == "" {
		caption = "📎 " + f.Name
	}
	opts := convview.SendOptions{Category: a.category, Priority: a.priority}

	go func() {
		defer file.Close()
		sent, err := v.SendMessage(a.ctx, caption, opts)
		if err != nil {
			a.flash.Err(err)
			return
		}
		task := a.opts.Uploader.Start(a.ctx, sent.ID, f)
		att, err := task.Wait()
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.logger.Info("attachment uploaded",
			zap.String("message_id", sent.ID),
			zap.String("file", att.FileName),
			zap.String("url", att.URL))
		a.flash.Info("attached " + f.Name)
		if err := v.Refresh(a.ctx); err != nil {
			a.logger.Warn("reload thread after upload", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) broadcast(text string) error {
	if strings.TrimSpace(text) == "" {
		return usage("broadcast <text>")
	}
	var recipients []messaging.Participant
	for _, c := range a.store.Conversations() {
		recipients = append(recipients, c.Recipient)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("broadcast: no conversations listed")
	}
	req := messaging.BroadcastRequest{
		Recipients: recipients,
		Content:    text,
		Category:   a.category,
		Priority:   a.priority,
	}
	go func() {
		res, err := a.store.SendBroadcast(a.ctx, req)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.flash.Info(fmt.Sprintf("broadcast delivered to %d, failed %d", res.Delivered, res.Failed))
	}()
	return nil
}

func (a *App) setQuietHours(args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return usage("quiet on|off")
	}
	s := a.engine.Settings()
	s.QuietHours.Enabled = args[0] == "on"
	if err := a.engine.UpdateSettings(s); err != nil {
		return err
	}
	a.flash.Info(fmt.Sprintf("quiet hours %s (%s-%s)", args[0], s.QuietHours.Start, s.QuietHours.End))
	return nil
}
