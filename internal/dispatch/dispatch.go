// Package dispatch classifies inbound chat updates into a closed set of
// actions. Every update maps to exactly one arm; anything the classifier does
// not recognize lands in the unrecognized arm, which downstream handlers must
// keep free of stateful side effects.
package dispatch

import (
	"path"
	"strings"

	"portraitbot/internal/telegram"
)

// Kind is the classification of one inbound update.
type Kind string

const (
	KindCommand      Kind = "command"
	KindImage        Kind = "image"
	KindCallback     Kind = "callback"
	KindUnrecognized Kind = "unrecognized"
)

// Command is a recognized slash command.
type Command struct {
	Name         string
	ChatID       int64
	UserID       int64
	LanguageCode string
}

// ImageUpload is the normalized image input shape. Both photo attachments and
// image documents reduce to this, so the pipeline downstream is
// attachment-kind-agnostic.
type ImageUpload struct {
	ChatID       int64
	UserID       int64
	MessageID    int64
	FileID       string
	FileName     string
	FileSize     int64
	LanguageCode string
}

// CallbackAction is a button press.
type CallbackAction struct {
	QueryID      string
	Action       string
	ChatID       int64
	MessageID    int64
	UserID       int64
	LanguageCode string
}

// Classified is the outcome of classifying one update. Exactly one of the
// pointer fields matching Kind is set.
type Classified struct {
	Kind     Kind
	ChatID   int64
	Command  *Command
	Image    *ImageUpload
	Callback *CallbackAction
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Classify maps an update to exactly one classification.
func Classify(u telegram.Update) Classified {
	if cb := u.CallbackQuery; cb != nil && cb.Message != nil && cb.Data != "" {
		return Classified{
			Kind:   KindCallback,
			ChatID: cb.Message.Chat.ID,
			Callback: &CallbackAction{
				QueryID:      cb.ID,
				Action:       cb.Data,
				ChatID:       cb.Message.Chat.ID,
				MessageID:    cb.Message.MessageID,
				UserID:       cb.From.ID,
				LanguageCode: cb.From.LanguageCode,
			},
		}
	}

	msg := u.Message
	if msg == nil {
		return Classified{Kind: KindUnrecognized}
	}

	if img, ok := detectImage(msg); ok {
		return Classified{Kind: KindImage, ChatID: msg.Chat.ID, Image: img}
	}

	if name, ok := parseCommand(msg.Text); ok {
		cmd := &Command{Name: name, ChatID: msg.Chat.ID}
		if msg.From != nil {
			cmd.UserID = msg.From.ID
			cmd.LanguageCode = msg.From.LanguageCode
		}
		return Classified{Kind: KindCommand, ChatID: msg.Chat.ID, Command: cmd}
	}

	return Classified{Kind: KindUnrecognized, ChatID: msg.Chat.ID}
}

// detectImage extracts an image input from a message: a native photo yields
// its largest rendition; a document qualifies when its MIME type has an image
// prefix or its filename extension is on the allow-list.
func detectImage(msg *telegram.Message) (*ImageUpload, bool) {
	var (
		fileID   string
		fileName string
		fileSize int64
	)

	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		fileID = best.FileID
		fileName = best.FileUniqueID + ".jpg"
		fileSize = best.FileSize
	case msg.Document != nil && isImageDocument(msg.Document):
		fileID = msg.Document.FileID
		fileName = msg.Document.FileName
		fileSize = msg.Document.FileSize
	default:
		return nil, false
	}

	up := &ImageUpload{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		FileID:    fileID,
		FileName:  fileName,
		FileSize:  fileSize,
	}
	if msg.From != nil {
		up.UserID = msg.From.ID
		up.LanguageCode = msg.From.LanguageCode
	}
	return up, true
}

func isImageDocument(doc *telegram.Document) bool {
	if strings.HasPrefix(strings.ToLower(doc.MimeType), "image/") {
		return true
	}
	ext := strings.ToLower(path.Ext(doc.FileName))
	return imageExtensions[ext]
}

func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0]
	// Strip the bot-mention suffix of group commands like /start@somebot.
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	return strings.ToLower(name), true
}
