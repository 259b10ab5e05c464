// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
)

// JSON:API resource types.
const (
	resourceGroups       = "groups"
	resourceRoles        = "roles"
	resourcePeople       = "people"
	resourceEvents       = "events"
	resourceInvoices     = "invoices"
	resourceMailingLists = "mailing_lists"
)

// =============================================================================
// Attribute Schemas
// =============================================================================

type groupAttributes struct {
	Name      string  `json:"name" validate:"required"`
	ShortName *string `json:"short_name"`
	Type      string  `json:"type" validate:"required"`
	ParentID  *int    `json:"parent_id" validate:"omitempty,gt=0"`
}

type roleAttributes struct {
	Type      string     `json:"type" validate:"required"`
	Name      *string    `json:"name"`
	Label     *string    `json:"label"`
	PersonID  *int       `json:"person_id" validate:"omitempty,gt=0"`
	GroupID   *int       `json:"group_id" validate:"omitempty,gt=0"`
	DeletedAt *time.Time `json:"deleted_at"`
}

type personAttributes struct {
	FirstName string  `json:"first_name" validate:"required_without_all=LastName Nickname"`
	LastName  string  `json:"last_name"`
	Nickname  *string `json:"nickname"`
	Picture   *string `json:"picture" validate:"omitempty,uri"`
}

type eventAttributes struct {
	Name     string     `json:"name" validate:"required"`
	Kind     string     `json:"kind"`
	Location *string    `json:"location"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	GroupIDs []int      `json:"group_ids" validate:"omitempty,dive,gt=0"`
}

type invoiceAttributes struct {
	Title       string     `json:"title" validate:"required"`
	State       string     `json:"state" validate:"required"`
	Total       float64    `json:"total" validate:"gte=0"`
	GroupID     int        `json:"group_id" validate:"required,gt=0"`
	RecipientID *int       `json:"recipient_id" validate:"omitempty,gt=0"`
	IssuedAt    *time.Time `json:"issued_at"`
}

type mailingListAttributes struct {
	Name         string  `json:"name" validate:"required"`
	GroupID      int     `json:"group_id" validate:"required,gt=0"`
	MailAddress  *string `json:"mail_address" validate:"omitempty,email"`
	Subscribable bool    `json:"subscribable"`
}

// =============================================================================
// Groups
// =============================================================================

// GetGroup fetches one group by id.
//
// Outputs:
//
//	datatypes.Group - The validated group.
//	error - ErrNotFound, ErrUnauthorized, ErrNoContent, ErrValidation, ...
func (c *Client) GetGroup(ctx context.Context, id int) (datatypes.Group, error) {
	obj, err := c.getOne(ctx, resourceGroups, "/api/groups/"+strconv.Itoa(id))
	if err != nil {
		return datatypes.Group{}, err
	}
	return toGroup(obj)
}

// GetGroups fetches every group matching f, e.g. ByParent(id).
func (c *Client) GetGroups(ctx context.Context, f Filter) ([]datatypes.Group, error) {
	objs, err := c.getAll(ctx, resourceGroups, "/api/groups", f)
	if err != nil {
		return nil, err
	}
	return convertAll(objs, toGroup)
}

func toGroup(obj resourceObject) (datatypes.Group, error) {
	var attrs groupAttributes
	id, err := decodeAttributes(resourceGroups, obj, &attrs)
	if err != nil {
		return datatypes.Group{}, err
	}
	parentID := attrs.ParentID
	if parentID == nil {
		if pid, ok := obj.relatedID("parent"); ok {
			parentID = &pid
		}
	}
	return datatypes.Group{
		ID:        id,
		Name:      attrs.Name,
		ShortName: attrs.ShortName,
		Type:      attrs.Type,
		ParentID:  parentID,
	}, nil
}

// =============================================================================
// Roles
// =============================================================================

// GetRoles fetches every role matching f, e.g. ByGroup(id). Soft-deleted
// roles are returned as-is; filtering is the caller's decision.
func (c *Client) GetRoles(ctx context.Context, f Filter) ([]datatypes.Role, error) {
	objs, err := c.getAll(ctx, resourceRoles, "/api/roles", f)
	if err != nil {
		return nil, err
	}
	return convertAll(objs, toRole)
}

func toRole(obj resourceObject) (datatypes.Role, error) {
	var attrs roleAttributes
	id, err := decodeAttributes(resourceRoles, obj, &attrs)
	if err != nil {
		return datatypes.Role{}, err
	}

	personID, ok := linkedID(attrs.PersonID, obj, "person")
	if !ok {
		return datatypes.Role{}, newValidationError(resourceRoles,
			errors.New("role "+obj.ID+" has no person"))
	}
	groupID, ok := linkedID(attrs.GroupID, obj, "group")
	if !ok {
		return datatypes.Role{}, newValidationError(resourceRoles,
			errors.New("role "+obj.ID+" has no group"))
	}

	name := attrs.Name
	if name == nil {
		name = attrs.Label
	}
	return datatypes.Role{
		ID:        id,
		Type:      attrs.Type,
		Name:      name,
		PersonID:  personID,
		GroupID:   groupID,
		DeletedAt: attrs.DeletedAt,
	}, nil
}

// linkedID prefers the attribute value and falls back to the relationship.
func linkedID(attr *int, obj resourceObject, rel string) (int, bool) {
	if attr != nil {
		return *attr, true
	}
	return obj.relatedID(rel)
}

// =============================================================================
// People
// =============================================================================

// GetPerson fetches one person by id. A relative picture path is resolved
// against the registry base URL.
func (c *Client) GetPerson(ctx context.Context, id int) (datatypes.Person, error) {
	obj, err := c.getOne(ctx, resourcePeople, "/api/people/"+strconv.Itoa(id))
	if err != nil {
		return datatypes.Person{}, err
	}

	var attrs personAttributes
	personID, err := decodeAttributes(resourcePeople, obj, &attrs)
	if err != nil {
		return datatypes.Person{}, err
	}
	return datatypes.Person{
		ID:        personID,
		FirstName: attrs.FirstName,
		LastName:  attrs.LastName,
		Nickname:  attrs.Nickname,
		Picture:   c.absolutePicture(attrs.Picture),
	}, nil
}

func (c *Client) absolutePicture(picture *string) *string {
	if picture == nil || *picture == "" {
		return nil
	}
	ref, err := url.Parse(*picture)
	if err != nil {
		return picture
	}
	abs := c.baseURL.ResolveReference(ref).String()
	return &abs
}

// =============================================================================
// Events, Invoices, Mailing Lists
// =============================================================================

// GetEvents fetches every event matching f.
func (c *Client) GetEvents(ctx context.Context, f Filter) ([]datatypes.Event, error) {
	objs, err := c.getAll(ctx, resourceEvents, "/api/events", f)
	if err != nil {
		return nil, err
	}
	return convertAll(objs, func(obj resourceObject) (datatypes.Event, error) {
		var attrs eventAttributes
		id, err := decodeAttributes(resourceEvents, obj, &attrs)
		if err != nil {
			return datatypes.Event{}, err
		}
		return datatypes.Event{
			ID:       id,
			Name:     attrs.Name,
			Kind:     attrs.Kind,
			Location: attrs.Location,
			StartsAt: attrs.StartsAt,
			EndsAt:   attrs.EndsAt,
			GroupIDs: attrs.GroupIDs,
		}, nil
	})
}

// GetInvoices fetches every invoice matching f.
func (c *Client) GetInvoices(ctx context.Context, f Filter) ([]datatypes.Invoice, error) {
	objs, err := c.getAll(ctx, resourceInvoices, "/api/invoices", f)
	if err != nil {
		return nil, err
	}
	return convertAll(objs, func(obj resourceObject) (datatypes.Invoice, error) {
		var attrs invoiceAttributes
		id, err := decodeAttributes(resourceInvoices, obj, &attrs)
		if err != nil {
			return datatypes.Invoice{}, err
		}
		return datatypes.Invoice{
			ID:          id,
			Title:       attrs.Title,
			State:       attrs.State,
			Total:       attrs.Total,
			GroupID:     attrs.GroupID,
			RecipientID: attrs.RecipientID,
			IssuedAt:    attrs.IssuedAt,
		}, nil
	})
}

// GetMailingLists fetches every mailing list matching f.
func (c *Client) GetMailingLists(ctx context.Context, f Filter) ([]datatypes.MailingList, error) {
	objs, err := c.getAll(ctx, resourceMailingLists, "/api/mailing_lists", f)
	if err != nil {
		return nil, err
	}
	return convertAll(objs, func(obj resourceObject) (datatypes.MailingList, error) {
		var attrs mailingListAttributes
		id, err := decodeAttributes(resourceMailingLists, obj, &attrs)
		if err != nil {
			return datatypes.MailingList{}, err
		}
		return datatypes.MailingList{
			ID:           id,
			Name:         attrs.Name,
			GroupID:      attrs.GroupID,
			MailAddress:  attrs.MailAddress,
			Subscribable: attrs.Subscribable,
		}, nil
	})
}

// convertAll converts every object; the first invalid one fails the call.
func convertAll[T any](objs []resourceObject, convert func(resourceObject) (T, error)) ([]T, error) {
	out := make([]T, 0, len(objs))
	for _, obj := range objs {
		v, err := convert(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
