// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package mastodon

// Instance is the v1 instance metadata document.
type Instance struct {
	URI              string         `json:"uri"`
	Title            string         `json:"title"`
	ShortDescription string         `json:"short_description"`
	Description      string         `json:"description"`
	Email            string         `json:"email"`
	Version          string         `json:"version"`
	Languages        []string       `json:"languages"`
	Registrations    bool           `json:"registrations"`
	ApprovalRequired bool           `json:"approval_required"`
	InvitesEnabled   bool           `json:"invites_enabled"`
	URLs             InstanceURLs   `json:"urls"`
	Stats            InstanceStats  `json:"stats"`
	Configuration    InstanceConfig `json:"configuration"`
}

// InstanceURLs holds the streaming endpoint advertisement.
type InstanceURLs struct {
	StreamingAPI string `json:"streaming_api"`
}

// InstanceStats are aggregate counts. The gateway has no aggregate view of
// the network; the counts are zero.
type InstanceStats struct {
	UserCount   int64 `json:"user_count"`
	StatusCount int64 `json:"status_count"`
	DomainCount int64 `json:"domain_count"`
}

// InstanceConfig advertises posting limits.
type InstanceConfig struct {
	Statuses   StatusesConfig   `json:"statuses"`
	MediaAttachmentsConfig MediaConfig `json:"media_attachments"`
}

// StatusesConfig advertises status composition limits.
type StatusesConfig struct {
	MaxCharacters            int `json:"max_characters"`
	MaxMediaAttachments      int `json:"max_media_attachments"`
	CharactersReservedPerURL int `json:"characters_reserved_per_url"`
}

// MediaConfig advertises upload limits.
type MediaConfig struct {
	SupportedMimeTypes  []string `json:"supported_mime_types"`
	ImageSizeLimit      int64    `json:"image_size_limit"`
	ImageMatrixLimit    int64    `json:"image_matrix_limit"`
}

// InstanceV2 is the v2 instance metadata document.
type InstanceV2 struct {
	Domain        string           `json:"domain"`
	Title         string           `json:"title"`
	Version       string           `json:"version"`
	SourceURL     string           `json:"source_url"`
	Description   string           `json:"description"`
	Languages     []string         `json:"languages"`
	Configuration InstanceConfig   `json:"configuration"`
	Registrations V2Registrations  `json:"registrations"`
	Contact       V2Contact        `json:"contact"`
}

// V2Registrations describes signup availability.
type V2Registrations struct {
	Enabled          bool `json:"enabled"`
	ApprovalRequired bool `json:"approval_required"`
}

// V2Contact is the instance contact block.
type V2Contact struct {
	Email string `json:"email"`
}
