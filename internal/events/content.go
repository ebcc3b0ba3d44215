package events

import (
	"encoding/json"
	"fmt"
)

const (
	MsgTypeKey = "msgtype"
	BodyKey    = "body"
)

// Content is the parsed content of a room message.
type Content interface {
	MsgType() string
	// Body is the plain-text fallback.
	Body() string
}

// TextContent serves m.text, m.emote, m.notice and verification requests.
type TextContent struct {
	Type          string `json:"msgtype"`
	Text          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
	FromDevice    string `json:"from_device,omitempty"`
	To            string `json:"to,omitempty"`
}

func (c *TextContent) MsgType() string { return c.Type }
func (c *TextContent) Body() string    { return c.Text }

// FileContent serves m.image, m.file, m.video and m.audio.
type FileContent struct {
	Type      string
	Text      string
	Source    FileSourceInfo
	Thumbnail FileSourceInfo
	Info      map[string]any
}

func (c *FileContent) MsgType() string { return c.Type }
func (c *FileContent) Body() string    { return c.Text }

func (c *FileContent) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	_ = json.Unmarshal(obj[MsgTypeKey], &c.Type)
	_ = json.Unmarshal(obj[BodyKey], &c.Text)
	src, err := ParseFileSource(obj, MainFileKeys)
	if err != nil {
		return err
	}
	c.Source = src
	if raw, ok := obj["info"]; ok {
		var info map[string]json.RawMessage
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("events: info: %w", err)
		}
		if c.Thumbnail, err = ParseFileSource(info, ThumbnailKeys); err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &c.Info); err != nil {
			return fmt.Errorf("events: info: %w", err)
		}
	}
	return nil
}

func (c *FileContent) MarshalJSON() ([]byte, error) {
	obj := map[string]any{MsgTypeKey: c.Type, BodyKey: c.Text}
	FillJSON(obj, MainFileKeys, c.Source)
	if c.Info != nil || c.Thumbnail != nil {
		info := make(map[string]any, len(c.Info)+1)
		for k, v := range c.Info {
			info[k] = v
		}
		delete(info, ThumbnailKeys[0])
		delete(info, ThumbnailKeys[1])
		FillJSON(info, ThumbnailKeys, c.Thumbnail)
		obj["info"] = info
	}
	return json.Marshal(obj)
}

// LocationContent serves m.location.
type LocationContent struct {
	Type   string `json:"msgtype"`
	Text   string `json:"body"`
	GeoURI string `json:"geo_uri"`
}

func (c *LocationContent) MsgType() string { return c.Type }
func (c *LocationContent) Body() string    { return c.Text }

// UnknownContent keeps a message whose msgtype is not registered.
type UnknownContent struct {
	Type string
	Text string
	Raw  json.RawMessage
}

func (c *UnknownContent) MsgType() string { return c.Type }
func (c *UnknownContent) Body() string    { return c.Text }

func (c *UnknownContent) MarshalJSON() ([]byte, error) { return c.Raw, nil }
