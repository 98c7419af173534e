package telegram

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
)

// response is the envelope of every Bot API reply.
type response struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID    string     `json:"file_id"`
	FileName  string     `json:"file_name,omitempty"`
	MimeType  string     `json:"mime_type,omitempty"`
	FileSize  int64      `json:"file_size,omitempty"`
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

type Video struct {
	FileID    string     `json:"file_id"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Duration  int        `json:"duration"`
	FileName  string     `json:"file_name,omitempty"`
	MimeType  string     `json:"mime_type,omitempty"`
	FileSize  int64      `json:"file_size,omitempty"`
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

type MessageOrigin struct {
	Type           string `json:"type"`
	Date           int64  `json:"date"`
	SenderUser     *User  `json:"sender_user,omitempty"`
	SenderUserName string `json:"sender_user_name,omitempty"`
	SenderChat     *Chat  `json:"sender_chat,omitempty"`
	Chat           *Chat  `json:"chat,omitempty"`
}

type Message struct {
	MessageID     int64          `json:"message_id"`
	From          *User          `json:"from,omitempty"`
	Chat          Chat           `json:"chat"`
	Date          int64          `json:"date"`
	Text          string         `json:"text,omitempty"`
	Caption       string         `json:"caption,omitempty"`
	Photo         []PhotoSize    `json:"photo,omitempty"`
	Document      *Document      `json:"document,omitempty"`
	Video         *Video         `json:"video,omitempty"`
	ForwardOrigin *MessageOrigin `json:"forward_origin,omitempty"`
}

type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

func (u *User) name() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (o *MessageOrigin) senderName() string {
	switch {
	case o.SenderUser != nil:
		return o.SenderUser.name()
	case o.SenderUserName != "":
		return o.SenderUserName
	case o.SenderChat != nil:
		return o.SenderChat.Title
	case o.Chat != nil:
		return o.Chat.Title
	}
	return ""
}

func photoFile(p PhotoSize) channel.File {
	return channel.File{ID: p.FileID, Size: p.FileSize, Width: p.Width, Height: p.Height, MimeType: "image/jpeg"}
}

func thumbnail(p *PhotoSize) *channel.File {
	if p == nil {
		return nil
	}
	f := photoFile(*p)
	return &f
}

// ToChannelMessage converts a Bot API message into the transport-independent form.
func ToChannelMessage(m *Message) *channel.Message {
	ret := &channel.Message{
		ID:             strconv.FormatInt(m.MessageID, 10),
		ConversationID: strconv.FormatInt(m.Chat.ID, 10),
		Date:           time.Unix(m.Date, 0).UTC(),
		Text:           m.Text,
		Caption:        m.Caption,
	}
	if m.From != nil {
		ret.From = channel.User{
			ID:           strconv.FormatInt(m.From.ID, 10),
			Name:         m.From.FirstName,
			LanguageCode: m.From.LanguageCode,
		}
	}
	for _, p := range m.Photo {
		ret.Photo = append(ret.Photo, photoFile(p))
	}
	if d := m.Document; d != nil {
		ret.Document = &channel.Document{
			File:      channel.File{ID: d.FileID, Size: d.FileSize, MimeType: d.MimeType},
			FileName:  d.FileName,
			Thumbnail: thumbnail(d.Thumbnail),
		}
	}
	if v := m.Video; v != nil {
		ret.Video = &channel.Video{
			File:      channel.File{ID: v.FileID, Size: v.FileSize, Width: v.Width, Height: v.Height, MimeType: v.MimeType},
			FileName:  v.FileName,
			Duration:  time.Duration(v.Duration) * time.Second,
			Thumbnail: thumbnail(v.Thumbnail),
		}
	}
	if o := m.ForwardOrigin; o != nil {
		ret.Forward = &channel.ForwardOrigin{
			SenderName: o.senderName(),
			Date:       time.Unix(o.Date, 0).UTC(),
		}
	}
	return ret
}
