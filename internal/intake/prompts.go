package intake

import (
	"strings"

	"sonaged-backend/internal/models"
)

// Reply is one outbound message. Transports decide how to render options
// (reply keyboard, interactive buttons) and the location request.
type Reply struct {
	Text            string
	Options         []Option
	RequestLocation bool
}

// Option is a quick-reply choice. Label is what the user sees (and what
// keyboard-based transports send back as text); ID is what button-based
// transports send back.
type Option struct {
	ID    string
	Label string
}

// categoryOptions holds the menu entry of each models.Categories name.
var categoryOptions = map[string]Option{
	models.CategoryDumping: {ID: "category:dumping", Label: "📍 Dumping"},
	models.CategoryFullBin: {ID: "category:full_bin", Label: "🗑 Full bin"},
	models.CategoryOther:   {ID: "category:other", Label: "🔹 Other"},
}

// SendLocationID marks the option transports render as a native location request.
const SendLocationID = "action:send_location"

var (
	optAttachPhoto  = Option{ID: "action:attach_photo", Label: "📷 Attach a photo"}
	optSendLocation = Option{ID: SendLocationID, Label: "📍 Send location"}
	optSkipPhoto    = Option{ID: "action:skip_photo", Label: "⏭ Skip photo"}
)

const (
	CommandStart  = "/start"
	CommandCancel = "/cancel"
)

const (
	msgChooseCategory      = "What would you like to report?"
	msgCategoryNotFound    = "Please pick one of the options below."
	msgAskDescription      = "Thanks. Please describe the problem."
	msgDescriptionRequired = "Please send a short text describing the problem."
	msgMediaOrLocation     = "You can attach a photo, or send your location to submit the report."
	msgAskPhoto            = "Send the photo now."
	msgPhotoRequired       = "That was not a photo. Send a photo, or skip this step."
	msgPhotoSaved          = "📷 Photo received. Now send your location."
	msgAskLocation         = "Please send your location."
	msgLocationInvalid     = "I could not read that location. Use the location button, or type it as \"latitude, longitude\"."
	msgReportSaved         = "✅ Report saved. Thank you!"
	msgReportNotSaved      = "❌ Your report could not be saved right now. Please send your location again in a moment."
	msgCancelled           = "Report cancelled. Send /start to begin a new one."
)

func categoryMenu(text string) Reply {
	opts := make([]Option, len(models.Categories))
	for i, name := range models.Categories {
		opts[i] = categoryOptions[name]
	}
	return Reply{Text: text, Options: opts}
}

func mediaOrLocationMenu(text string) Reply {
	return Reply{Text: text, Options: []Option{optAttachPhoto, optSendLocation}, RequestLocation: true}
}

func photoPrompt(text string) Reply {
	return Reply{Text: text, Options: []Option{optSkipPhoto}}
}

func locationPrompt(text string) Reply {
	return Reply{Text: text, RequestLocation: true}
}

func textReply(text string) Reply {
	return Reply{Text: text}
}

// MatchCategory resolves a payload to a category name by exact label, name or button id.
func MatchCategory(p Payload) (string, bool) {
	for _, name := range models.Categories {
		if chose(p, categoryOptions[name], name) {
			return name, true
		}
	}
	return "", false
}

// chose reports whether p selects opt: its button id, its label, or one of the extra keywords.
func chose(p Payload, opt Option, keywords ...string) bool {
	switch v := p.(type) {
	case Button:
		return v.ID == opt.ID
	case Text:
		s := strings.TrimSpace(v.Value)
		if s == opt.Label {
			return true
		}
		for _, k := range keywords {
			if s == k {
				return true
			}
		}
	}
	return false
}

func isCommand(p Payload, cmd string) bool {
	t, ok := p.(Text)
	if !ok {
		return false
	}
	s := strings.TrimSpace(t.Value)
	// Telegram appends the bot name in groups: /start@SomeBot
	if at := strings.IndexByte(s, '@'); at > 0 {
		s = s[:at]
	}
	return s == cmd
}
