// Package mastodon defines the client-facing entities of the Mastodon v1
// API surface the gateway presents.
//
// Every entity ID is the decimal string form of a snowflake. Timestamps are
// ISO-8601 UTC. Fields Bluesky does not model are kept present-but-empty so
// that clients relying on the documented shapes keep working.
package mastodon

import "time"

// Account is the Mastodon account entity.
type Account struct {
	ID             string         `json:"id"`
	Username       string         `json:"username"`
	Acct           string         `json:"acct"`
	DisplayName    string         `json:"display_name"`
	Note           string         `json:"note"`
	Avatar         string         `json:"avatar"`
	AvatarStatic   string         `json:"avatar_static"`
	Header         string         `json:"header"`
	HeaderStatic   string         `json:"header_static"`
	FollowersCount int64          `json:"followers_count"`
	FollowingCount int64          `json:"following_count"`
	StatusesCount  int64          `json:"statuses_count"`
	CreatedAt      time.Time      `json:"created_at"`
	URL            string         `json:"url"`
	Bot            bool           `json:"bot"`
	Locked         bool           `json:"locked"`
	Discoverable   bool           `json:"discoverable"`
	Group          bool           `json:"group"`
	Emojis         []CustomEmoji  `json:"emojis"`
	Fields         []AccountField `json:"fields"`
}

// AccountField is a profile metadata field. Bluesky has none; the slice is
// always empty but present.
type AccountField struct {
	Name       string     `json:"name"`
	Value      string     `json:"value"`
	VerifiedAt *time.Time `json:"verified_at"`
}

// CustomEmoji exists only for shape compatibility; Bluesky has no custom
// emojis and the gateway always returns empty slices.
type CustomEmoji struct {
	Shortcode       string `json:"shortcode"`
	URL             string `json:"url"`
	StaticURL       string `json:"static_url"`
	VisibleInPicker bool   `json:"visible_in_picker"`
}

// Status is the Mastodon status entity.
type Status struct {
	ID                 string            `json:"id"`
	URI                string            `json:"uri"`
	URL                string            `json:"url"`
	CreatedAt          time.Time         `json:"created_at"`
	Account            *Account          `json:"account"`
	Content            string            `json:"content"`
	Visibility         string            `json:"visibility"`
	Sensitive          bool              `json:"sensitive"`
	SpoilerText        string            `json:"spoiler_text"`
	Language           *string           `json:"language"`
	InReplyToID        *string           `json:"in_reply_to_id"`
	InReplyToAccountID *string           `json:"in_reply_to_account_id"`
	FavouritesCount    int64             `json:"favourites_count"`
	ReblogsCount       int64             `json:"reblogs_count"`
	RepliesCount       int64             `json:"replies_count"`
	Favourited         bool              `json:"favourited"`
	Reblogged          bool              `json:"reblogged"`
	Muted              bool              `json:"muted"`
	Bookmarked         bool              `json:"bookmarked"`
	Pinned             bool              `json:"pinned"`
	Reblog             *Status           `json:"reblog"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Mentions           []Mention         `json:"mentions"`
	Tags               []Tag             `json:"tags"`
	Emojis             []CustomEmoji     `json:"emojis"`
	Card               *Card             `json:"card"`
	Application        *Application      `json:"application,omitempty"`
}

// MediaAttachment is an image (or staged upload) attached to a status.
type MediaAttachment struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	PreviewURL  string  `json:"preview_url"`
	RemoteURL   *string `json:"remote_url"`
	Description *string `json:"description"`
	Blurhash    *string `json:"blurhash"`
}

// Card is a link preview generated from an external embed.
type Card struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Image       string `json:"image,omitempty"`
}

// Mention references an account mentioned in a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	URL      string `json:"url"`
	Acct     string `json:"acct"`
}

// Tag references a hashtag used in a status.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Notification is the Mastodon notification entity.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   *Account  `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

// Relationship describes how the current user relates to another account.
type Relationship struct {
	ID                  string `json:"id"`
	Following           bool   `json:"following"`
	ShowingReblogs      bool   `json:"showing_reblogs"`
	Notifying           bool   `json:"notifying"`
	FollowedBy          bool   `json:"followed_by"`
	Blocking            bool   `json:"blocking"`
	BlockedBy           bool   `json:"blocked_by"`
	Muting              bool   `json:"muting"`
	MutingNotifications bool   `json:"muting_notifications"`
	Requested           bool   `json:"requested"`
	DomainBlocking      bool   `json:"domain_blocking"`
	Endorsed            bool   `json:"endorsed"`
	Note                string `json:"note"`
}

// Application is the response to OAuth app registration.
type Application struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	VapidKey     string `json:"vapid_key,omitempty"`
}

// Token is the response to a successful OAuth token grant.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}

// List is a Mastodon list. Bluesky lists are not bridged; the shape exists
// so list-aware clients get empty results instead of errors.
type List struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	RepliesPolicy string `json:"replies_policy"`
}

// Context is the thread context of a status.
type Context struct {
	Ancestors   []*Status `json:"ancestors"`
	Descendants []*Status `json:"descendants"`
}

// Error is the wire shape of every failure response.
type Error struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}
