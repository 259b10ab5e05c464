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
	"net/url"
	"strconv"
)

// Filter is the query of a collection call.
//
// Zero-valued members are omitted from the query string.
type Filter struct {
	// Where maps attribute names to filter values: filter[key]=value.
	Where map[string]string

	// Sort is the JSON:API sort expression, e.g. "-created_at".
	Sort string

	// PageNumber and PageSize select a page; zero means server default.
	PageNumber int
	PageSize   int
}

// ByParent filters groups by their parent group.
func ByParent(parentID int) Filter {
	return Filter{Where: map[string]string{"parent_id": strconv.Itoa(parentID)}}
}

// ByGroup filters roles (or other group-scoped resources) by group.
func ByGroup(groupID int) Filter {
	return Filter{Where: map[string]string{"group_id": strconv.Itoa(groupID)}}
}

// Values serializes the filter. Keys with empty values are dropped.
func (f Filter) Values() url.Values {
	v := url.Values{}
	for key, value := range f.Where {
		if key == "" || value == "" {
			continue
		}
		v.Set("filter["+key+"]", value)
	}
	if f.Sort != "" {
		v.Set("sort", f.Sort)
	}
	if f.PageNumber > 0 {
		v.Set("page[number]", strconv.Itoa(f.PageNumber))
	}
	if f.PageSize > 0 {
		v.Set("page[size]", strconv.Itoa(f.PageSize))
	}
	return v
}

// Encode returns the query string with keys in sorted order.
func (f Filter) Encode() string {
	return f.Values().Encode()
}
