package model

import "time"

type (
	// Party is a participant the gateway seals messages for. The gateway
	// keeps every party's secret; distributing secrets is out of band.
	Party struct {
		Name      string    `json:"name" bson:"name"`
		PublicID  string    `json:"publicId" bson:"public_id"`
		Secret    []byte    `json:"-" bson:"secret"`
		CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	}

	// Notification is pushed to a recipient when a message naming it is
	// appended.
	Notification struct {
		TicketID  string `json:"ticketId"`
		MessageID string `json:"messageId"`
		Digest    string `json:"digest"`
	}
)
