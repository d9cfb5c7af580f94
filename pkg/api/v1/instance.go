// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
)

const (
	instanceTitle       = "BlueBridge"
	instanceDescription = "A Mastodon-compatible gateway to Bluesky. Sign in with your Bluesky handle and an app password."
	maxStatusCharacters = 300
	maxMediaPerStatus   = 4
)

// InstanceRoutes serves the instance metadata documents clients probe on
// first contact.
type InstanceRoutes struct {
	domain  string
	version string
}

// InstanceRouter creates a new InstanceRoutes instance for /api/v1/instance.
func InstanceRouter(deps Deps) http.Handler {
	routes := instanceRoutes(deps)
	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.v1))
	return r
}

// InstanceV2Router serves /api/v2/instance.
func InstanceV2Router(deps Deps) http.Handler {
	routes := instanceRoutes(deps)
	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.v2))
	return r
}

func instanceRoutes(deps Deps) InstanceRoutes {
	return InstanceRoutes{domain: deps.Domain, version: deps.SoftwareVersion}
}

func (s *InstanceRoutes) configuration() mastodon.InstanceConfig {
	return mastodon.InstanceConfig{
		Statuses: mastodon.StatusesConfig{
			MaxCharacters:            maxStatusCharacters,
			MaxMediaAttachments:      maxMediaPerStatus,
			CharactersReservedPerURL: 23,
		},
		MediaAttachmentsConfig: mastodon.MediaConfig{
			SupportedMimeTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			ImageSizeLimit:     1 << 20,
			ImageMatrixLimit:   16777216,
		},
	}
}

func (s *InstanceRoutes) v1(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, mastodon.Instance{
		URI:              s.domain,
		Title:            instanceTitle,
		ShortDescription: instanceDescription,
		Description:      instanceDescription,
		Version:          "4.2.0 (compatible; " + instanceTitle + " " + s.version + ")",
		Languages:        []string{"en"},
		Registrations:    false,
		Stats:            mastodon.InstanceStats{},
		Configuration:    s.configuration(),
	})
	return nil
}

func (s *InstanceRoutes) v2(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, mastodon.InstanceV2{
		Domain:        s.domain,
		Title:         instanceTitle,
		Version:       "4.2.0 (compatible; " + instanceTitle + " " + s.version + ")",
		SourceURL:     "https://github.com/bluebridge-dev/bluebridge",
		Description:   instanceDescription,
		Languages:     []string{"en"},
		Configuration: s.configuration(),
		Registrations: mastodon.V2Registrations{Enabled: false},
	})
	return nil
}
