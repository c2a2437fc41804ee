package store

import (
	"strings"
	"time"
)

// EpisodeStatus represents the lifecycle of an episode.
type EpisodeStatus string

const (
	EpisodePending    EpisodeStatus = "pending"
	EpisodeGenerating EpisodeStatus = "generating"
	EpisodeStitching  EpisodeStatus = "stitching"
	EpisodeUploading  EpisodeStatus = "uploading"
	EpisodePublished  EpisodeStatus = "published"
	EpisodeFailed     EpisodeStatus = "failed"
)

var episodeStatuses = []EpisodeStatus{
	EpisodePending,
	EpisodeGenerating,
	EpisodeStitching,
	EpisodeUploading,
	EpisodePublished,
	EpisodeFailed,
}

var episodeStatusSet = func() map[EpisodeStatus]struct{} {
	set := make(map[EpisodeStatus]struct{}, len(episodeStatuses))
	for _, status := range episodeStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// EpisodeStatuses returns the ordered list of known statuses.
func EpisodeStatuses() []EpisodeStatus {
	cp := make([]EpisodeStatus, len(episodeStatuses))
	copy(cp, episodeStatuses)
	return cp
}

// ParseEpisodeStatus converts a string into a known EpisodeStatus.
func ParseEpisodeStatus(value string) (EpisodeStatus, bool) {
	normalized := EpisodeStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := episodeStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends the current execution.
func (s EpisodeStatus) IsTerminal() bool {
	return s == EpisodePublished || s == EpisodeFailed
}

// EpisodeType tags which recurring show format an episode belongs to.
type EpisodeType string

const (
	TypePostRace    EpisodeType = "post-race"
	TypePostFP2     EpisodeType = "post-fp2"
	TypePostSprint  EpisodeType = "post-sprint"
	TypeWeeklyRecap EpisodeType = "weekly-recap"
	TypePreRace     EpisodeType = "pre-race" // retained for older rows
)

var episodeTypes = map[EpisodeType]struct{}{
	TypePostRace:    {},
	TypePostFP2:     {},
	TypePostSprint:  {},
	TypeWeeklyRecap: {},
	TypePreRace:     {},
}

// ParseEpisodeType converts a string into a known EpisodeType.
func ParseEpisodeType(value string) (EpisodeType, bool) {
	normalized := EpisodeType(strings.ToLower(strings.TrimSpace(value)))
	_, ok := episodeTypes[normalized]
	return normalized, ok
}

// Episode is one production run from trigger to publish.
type Episode struct {
	ID          int64
	RaceID      *int64
	EpisodeType EpisodeType
	Title       string
	Description string
	Status      EpisodeStatus

	TriggeredAt           time.Time
	GenerationStartedAt   *time.Time
	GenerationCompletedAt *time.Time
	UploadStartedAt       *time.Time
	PublishedAt           *time.Time

	FinalVideoPath string
	YouTubeVideoID string
	YouTubeURL     string

	DurationSeconds int64
	SceneCount      int

	ScriptTokensUsed int64
	ScriptCostUSD    float64
	SynthCalls       int64

	RetryCount    int
	LastError     string
	LastErrorKind string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetFailed marks the episode failed with the given error message and
// classification.
func (e *Episode) SetFailed(message, kind string) {
	e.Status = EpisodeFailed
	e.LastError = message
	e.LastErrorKind = kind
	e.RetryCount++
}

// SceneStatus represents the lifecycle of one scene within an episode.
type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneGenerating SceneStatus = "generating"
	SceneCompleted  SceneStatus = "completed"
	SceneFailed     SceneStatus = "failed"
)

// Scene is one ordered unit of an episode: a still image, a synthesis
// prompt, and a short clip.
type Scene struct {
	ID          int64
	EpisodeID   int64
	SceneNumber int

	CharacterID *int64

	Dialogue          string
	ActionDescription string
	AudioDescription  string

	Status          SceneStatus
	SourceImagePath string
	VideoClipPath   string

	GenerationStartedAt   *time.Time
	GenerationCompletedAt *time.Time
	GenerationTimeMs      int

	RetryCount int
	LastError  string

	CreatedAt time.Time
}

// Character holds roster and caricature data for consistent generation.
type Character struct {
	ID               int64
	Name             string
	DisplayName      string
	Personality      string
	VoiceDescription string
	PrimaryImagePath string
	IsActive         bool

	Role                string
	Team                string
	Nationality         string
	PhysicalFeatures    string
	ComedyAngle         string
	SignatureExpression string
	SignaturePose       string
	Props               string
	BackgroundType      string
	BackgroundDetail    string
	ClothingDescription string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Traits flattens the caricature fields into the map shape the image
// collaborator's prompt builder consumes.
func (c Character) Traits() map[string]string {
	return map[string]string{
		"display_name":         c.DisplayName,
		"role":                 c.Role,
		"team":                 c.Team,
		"nationality":          c.Nationality,
		"physical_features":    c.PhysicalFeatures,
		"comedy_angle":         c.ComedyAngle,
		"signature_expression": c.SignatureExpression,
		"signature_pose":       c.SignaturePose,
		"props":                c.Props,
		"background_type":      c.BackgroundType,
		"background_detail":    c.BackgroundDetail,
		"clothing_description": c.ClothingDescription,
	}
}

// CharacterImage is one stored reference image for a character.
type CharacterImage struct {
	ID               int64
	CharacterID      int64
	ImagePath        string
	ImageType        string
	PoseDescription  string
	IsPrimary        bool
	IsStyleReference bool
	CreatedAt        time.Time
}

// Race is the event an episode comments on.
type Race struct {
	ID              int64
	Season          int
	RoundNumber     int
	RaceName        string
	CircuitName     string
	Country         string
	RaceDate        time.Time
	IsSprintWeekend bool
}

// Usage is one append-only API usage ledger entry.
type Usage struct {
	ID             int64
	EpisodeID      int64
	SceneID        *int64
	Provider       string
	Endpoint       string
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	ResponseTimeMs int
	CreatedAt      time.Time
}

// JobStatus represents the lifecycle of a scheduled job.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ScheduledJob is a calendar-driven trigger awaiting launch.
type ScheduledJob struct {
	ID           int64
	RaceID       *int64
	TriggerType  EpisodeType
	ScheduledFor time.Time
	Status       JobStatus
	EpisodeID    *int64
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HealthSummary aggregates episode counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Published  int
	Failed     int
}
