package model

// Entity status
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Audio types
type AudioType string

const (
	AudioTypeMusic   AudioType = "music"
	AudioTypeAmbient AudioType = "ambient"
	AudioTypeHybrid  AudioType = "hybrid"
)

var ValidAudioTypes = []AudioType{AudioTypeMusic, AudioTypeAmbient, AudioTypeHybrid}

// Tempo buckets
type Tempo string

const (
	TempoSlow   Tempo = "slow"
	TempoMedium Tempo = "medium"
	TempoFast   Tempo = "fast"
)

// Density levels
type Density string

const (
	DensitySparse Density = "sparse"
	DensityMedium Density = "medium"
	DensityDense  Density = "dense"
)

// Relation of a reply's audio to its parent
type Relation string

const (
	RelationOriginal  Relation = "original"
	RelationMirror    Relation = "mirror"
	RelationVariation Relation = "variation"
	RelationContrast  Relation = "contrast"
)

var ValidReplyRelations = []Relation{RelationMirror, RelationVariation, RelationContrast}

// Hue categories derived from the gesture endpoint
type HueCategory string

const (
	HueWarmRed     HueCategory = "warm_red"
	HueWarmOrange  HueCategory = "warm_orange"
	HueWarmYellow  HueCategory = "warm_yellow"
	HueWarmMagenta HueCategory = "warm_magenta"
	HueCoolGreen   HueCategory = "cool_green"
	HueCoolCyan    HueCategory = "cool_cyan"
	HueCoolBlue    HueCategory = "cool_blue"
	HueCoolPurple  HueCategory = "cool_purple"
	HueNeutralGray HueCategory = "neutral_gray"
)
