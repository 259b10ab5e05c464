// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Event is a registry event (camp, course, meeting).
type Event struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Kind     string     `json:"kind,omitempty"`
	Location *string    `json:"location,omitempty"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
	GroupIDs []int      `json:"groupIds,omitempty"`
}

// Invoice is a registry invoice header.
type Invoice struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	Total       float64    `json:"total"`
	GroupID     int        `json:"groupId"`
	RecipientID *int       `json:"recipientId,omitempty"`
	IssuedAt    *time.Time `json:"issuedAt,omitempty"`
}

// MailingList is a registry mailing list (Abo).
type MailingList struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	GroupID      int     `json:"groupId"`
	MailAddress  *string `json:"mailAddress,omitempty"`
	Subscribable bool    `json:"subscribable"`
}
