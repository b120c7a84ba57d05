package vaillant

import (
	"context"
	"errors"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// Controller routes device commands through the websocket session
// when it is up, falling back to the HTTP control endpoint.
type Controller struct {
	session *Session
	client  *Client
}

func NewController(session *Session, client *Client) *Controller {
	return &Controller{session: session, client: client}
}

func (c *Controller) ControlDevice(ctx context.Context, deviceID string, attrs hub.Attrs) error {
	if c.session != nil {
		err := c.session.ControlDevice(ctx, deviceID, attrs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSessionDown) {
			return err
		}
	}
	if c.client == nil {
		return ErrSessionDown
	}
	return c.client.ControlDevice(ctx, deviceID, attrs)
}
