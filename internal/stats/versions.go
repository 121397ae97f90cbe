package stats

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion identifies the shape of a stored snapshot.
type SchemaVersion int

const (
	SchemaV1 SchemaVersion = 1
	SchemaV2 SchemaVersion = 2
	SchemaV3 SchemaVersion = 3

	CurrentVersion = SchemaV3
)

// UnmarshalJSON accepts the same lenient forms as Number.
func (v *SchemaVersion) UnmarshalJSON(data []byte) error {
	var n Number
	_ = n.UnmarshalJSON(data)
	*v = SchemaVersion(n)
	return nil
}

// ErrUnsupportedVersion is returned by Decode for versions newer than CurrentVersion.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Record is a decoded snapshot of any schema version. The concrete types are
// *SnapshotV1, *SnapshotV2 and *Snapshot.
type Record interface {
	SchemaVersion() SchemaVersion
	// Upgrade converts the record into a new current-version snapshot.
	Upgrade() *Snapshot
	record()
}

// UserStatsV1 predates returning users.
type UserStatsV1 struct {
	New    Number `json:"new"`
	Active Number `json:"active"`
}

// SystemStatsV1 tracked iOS instead of all Apple systems.
type SystemStatsV1 struct {
	Android RelativeStats `json:"android"`
	IOS     RelativeStats `json:"ios"`
	Windows RelativeStats `json:"windows"`
}

// SystemStatsV2 has no bucket for other systems.
type SystemStatsV2 struct {
	Android RelativeStats `json:"android"`
	Apple   RelativeStats `json:"apple"`
	Windows RelativeStats `json:"windows"`
}

type DeviceStatsV1 struct {
	Total      Number          `json:"total"`
	FormFactor FormFactorStats `json:"formFactor"`
	Systems    SystemStatsV1   `json:"systems"`
}

type DeviceStatsV2 struct {
	Total      Number          `json:"total"`
	FormFactor FormFactorStats `json:"formFactor"`
	Systems    SystemStatsV2   `json:"systems"`
}

// SnapshotV1 is the first stored schema. It carries no version field.
type SnapshotV1 struct {
	Date     Date              `json:"date"`
	Users    UserStatsV1       `json:"users"`
	Sessions SessionStats      `json:"sessions"`
	Devices  DeviceStatsV1     `json:"devices"`
	Games    GameStats         `json:"games"`
	Quizzes  QuizStats         `json:"quizzes"`
	Events   map[string]Number `json:"events"`
}

func (s *SnapshotV1) SchemaVersion() SchemaVersion { return SchemaV1 }

func (s *SnapshotV1) Upgrade() *Snapshot {
	v2 := &SnapshotV2{
		Date: s.Date,
		Users: UserStats{
			New:    s.Users.New,
			Active: s.Users.Active,
		},
		Sessions: s.Sessions,
		Devices: DeviceStatsV2{
			Total:      s.Devices.Total,
			FormFactor: s.Devices.FormFactor,
			Systems: SystemStatsV2{
				Android: s.Devices.Systems.Android,
				Apple:   s.Devices.Systems.IOS,
				Windows: s.Devices.Systems.Windows,
			},
		},
		Games:   s.Games,
		Quizzes: s.Quizzes,
		Events:  s.Events,
	}
	return v2.Upgrade()
}

func (s *SnapshotV1) record() {}

// SnapshotV2 added returning users and renamed the iOS bucket to Apple.
type SnapshotV2 struct {
	Date     Date              `json:"date"`
	Users    UserStats         `json:"users"`
	Sessions SessionStats      `json:"sessions"`
	Devices  DeviceStatsV2     `json:"devices"`
	Games    GameStats         `json:"games"`
	Quizzes  QuizStats         `json:"quizzes"`
	Events   map[string]Number `json:"events"`
}

func (s *SnapshotV2) SchemaVersion() SchemaVersion { return SchemaV2 }

func (s *SnapshotV2) Upgrade() *Snapshot {
	current := &Snapshot{
		Date:     s.Date,
		Users:    s.Users,
		Sessions: s.Sessions,
		Devices: DeviceStats{
			Total:      s.Devices.Total,
			FormFactor: s.Devices.FormFactor,
			Systems: SystemStats{
				Android: s.Devices.Systems.Android,
				Apple:   s.Devices.Systems.Apple,
				Windows: s.Devices.Systems.Windows,
			},
		},
		Games:   s.Games,
		Quizzes: s.Quizzes,
		Events:  s.Events,
	}

	// Clone detaches the upgraded snapshot from the slices and maps of s.
	upgraded := current.Clone()
	upgraded.normalize()
	return upgraded
}

func (s *SnapshotV2) record() {}

// Decode parses a stored snapshot of any schema version.
//
// A "version" field selects the schema when present. Without one, a
// devices.systems.ios bucket marks V1 and anything else is read as V2.
func Decode(data []byte) (Record, error) {
	var envelope struct {
		Version json.RawMessage `json:"version"`
		Devices struct {
			Systems map[string]json.RawMessage `json:"systems"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	var version Number
	if len(envelope.Version) > 0 {
		_ = version.UnmarshalJSON(envelope.Version)
	}

	var record Record
	switch {
	case SchemaVersion(version) > CurrentVersion:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, version)
	case SchemaVersion(version) == SchemaV3:
		record = &Snapshot{}
	case SchemaVersion(version) == SchemaV1:
		record = &SnapshotV1{}
	case SchemaVersion(version) == SchemaV2:
		record = &SnapshotV2{}
	default:
		if _, ok := envelope.Devices.Systems["ios"]; ok {
			record = &SnapshotV1{}
		} else {
			record = &SnapshotV2{}
		}
	}

	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to decode v%d snapshot: %w", record.SchemaVersion(), err)
	}
	if current, ok := record.(*Snapshot); ok {
		current.normalize()
	}
	return record, nil
}

// DecodeCurrent decodes a snapshot of any version and upgrades it.
func DecodeCurrent(data []byte) (*Snapshot, error) {
	record, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return record.Upgrade(), nil
}

// Encode serializes a snapshot in the current schema.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s.Upgrade())
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}
