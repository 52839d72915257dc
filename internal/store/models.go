package store

import (
	"strings"
	"time"
)

// ContentStatus represents the lifecycle of a content item.
type ContentStatus string

const (
	ContentPendingApproval ContentStatus = "pending_approval"
	ContentPlanned         ContentStatus = "planned"
	ContentProducing       ContentStatus = "producing"
	ContentReady           ContentStatus = "ready"
	ContentPosted          ContentStatus = "posted"
	ContentMeasured        ContentStatus = "measured"
	ContentAnalyzed        ContentStatus = "analyzed"
	ContentError           ContentStatus = "error"
	ContentCancelled       ContentStatus = "cancelled"
)

// PublicationStatus represents the lifecycle of a platform posting.
type PublicationStatus string

const (
	PublicationScheduled PublicationStatus = "scheduled"
	PublicationPosted    PublicationStatus = "posted"
	PublicationMeasured  PublicationStatus = "measured"
)

var allContentStatuses = []ContentStatus{
	ContentPendingApproval,
	ContentPlanned,
	ContentProducing,
	ContentReady,
	ContentPosted,
	ContentMeasured,
	ContentAnalyzed,
	ContentError,
	ContentCancelled,
}

var contentStatusSet = func() map[ContentStatus]struct{} {
	set := make(map[ContentStatus]struct{}, len(allContentStatuses))
	for _, status := range allContentStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// contentTransitions is the authoritative transition table for content items.
// Statuses with no entry are terminal.
var contentTransitions = map[ContentStatus][]ContentStatus{
	ContentPendingApproval: {ContentPlanned, ContentCancelled, ContentError},
	ContentPlanned:         {ContentProducing, ContentCancelled, ContentError},
	ContentProducing:       {ContentReady, ContentError, ContentCancelled},
	ContentReady:           {ContentPosted, ContentError, ContentCancelled},
	ContentPosted:          {ContentMeasured, ContentError},
	ContentMeasured:        {ContentAnalyzed, ContentError},
}

// publicationTransitions is the authoritative transition table for publications.
var publicationTransitions = map[PublicationStatus][]PublicationStatus{
	PublicationScheduled: {PublicationPosted},
	PublicationPosted:    {PublicationMeasured},
}

// AllContentStatuses returns the ordered list of known content statuses.
func AllContentStatuses() []ContentStatus {
	cp := make([]ContentStatus, len(allContentStatuses))
	copy(cp, allContentStatuses)
	return cp
}

// ParseContentStatus converts a string into a known ContentStatus.
func ParseContentStatus(value string) (ContentStatus, bool) {
	normalized := ContentStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := contentStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a content status has no outgoing transitions.
func (s ContentStatus) IsTerminal() bool {
	_, ok := contentTransitions[s]
	return !ok
}

// CanTransition reports whether from -> to is a legal content transition.
func CanTransition(from, to ContentStatus) bool {
	for _, allowed := range contentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionPublication reports whether from -> to is a legal publication transition.
func CanTransitionPublication(from, to PublicationStatus) bool {
	for _, allowed := range publicationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Section is one ordered sub-part of a video, produced independently
// before assembly.
type Section struct {
	Index        int    `json:"index"`
	ComponentRef string `json:"component_ref"`
	Script       string `json:"script,omitempty"`
}

// Content represents one piece of creative work tracked through its
// production lifecycle.
type Content struct {
	ContentID         string
	Status            ContentStatus
	HypothesisID      string
	ContentFormat     string
	ScriptLanguage    string
	PlannedPostDate   string
	Sections          []Section
	VoiceID           string
	CharacterRef      string
	VideoArtifactRef  string
	DriveFolderRef    string
	ErrorMessage      string
	ProcessingTimeSec float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Publication represents one platform-specific posting of a content item.
type Publication struct {
	ID             int64
	ContentID      string
	AccountID      string
	Platform       string
	PlatformPostID string
	Status         PublicationStatus
	PostedAt       *time.Time
	MeasureAfter   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HealthSummary describes aggregated content counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Planned   int
	Producing int
	Ready     int
	Errored   int
}
