package events

import (
	"encoding/json"
	"fmt"

	"dinostats/internal/pkg/user_agent"
)

type DisplayMode string

const (
	DisplayModeStandalone DisplayMode = "standalone"
	DisplayModeMinimalUI  DisplayMode = "minimal-ui"
	DisplayModeFullscreen DisplayMode = "fullscreen"
	DisplayModeBrowser    DisplayMode = "browser"
)

type ScreenProperties struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Orientation string `json:"orientation"`
	ColorDepth  int    `json:"colorDepth"`
	PixelDepth  int    `json:"pixelDepth"`
}

// GameInitPayload is a game-init payload of any schema version. The concrete
// types are *GameInitPayloadV1 and *GameInitPayloadV2.
type GameInitPayload interface {
	// Base returns the fields shared by every version.
	Base() *GameInitPayloadV1
	gameInitPayload()
}

// GameInitPayloadV1 carries no version field.
type GameInitPayloadV1 struct {
	IPAddress string           `json:"ipAddress"`
	Screen    ScreenProperties `json:"screen"`
	UserAgent string           `json:"userAgent"`
}

func (p *GameInitPayloadV1) Base() *GameInitPayloadV1 { return p }

func (p *GameInitPayloadV1) gameInitPayload() {}

// GameInitPayloadV2 adds display and input hints. Version is always 2.
type GameInitPayloadV2 struct {
	GameInitPayloadV1
	DisplayMode    DisplayMode `json:"displayMode"`
	Language       string      `json:"language"`
	MaxTouchPoints int         `json:"maxTouchPoints"`
	Version        int         `json:"version"`
}

// DecodeGameInitPayload decodes a payload, selecting V2 when it declares
// version 2 and V1 otherwise.
func DecodeGameInitPayload(data []byte) (GameInitPayload, error) {
	var envelope struct {
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var version float64
	if json.Unmarshal(envelope.Version, &version) != nil || version != 2 {
		payload := &GameInitPayloadV1{}
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return payload, nil
	}

	// The wire version may be written as 2.0, which does not fit an int.
	payload := &GameInitPayloadV2{}
	shadow := struct {
		*GameInitPayloadV2
		Version json.RawMessage `json:"version"`
	}{GameInitPayloadV2: payload}
	if err := json.Unmarshal(data, &shadow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	payload.Version = 2
	return payload, nil
}

// Analysis is the device classification of a game-init payload.
type Analysis struct {
	OperatingSystem user_agent.OperatingSystem `json:"operatingSystem"`
	Browser         user_agent.Browser         `json:"browser"`
}

// AnalyzeGameInitPayload classifies the payload's user agent and corrects
// the result with the hints the payload carries.
//
// Safari on Android is an in-app browser. On V2 payloads a standalone display
// mode marks an installed web app (NW.js keeps its context), and a macOS user
// agent on a device with more than two touch points is an iPad, whose iOS
// version matches the Safari version.
func AnalyzeGameInitPayload(payload GameInitPayload) Analysis {
	if payload == nil {
		return Analysis{
			OperatingSystem: user_agent.UnknownOperatingSystem(),
			Browser:         user_agent.UnknownBrowser(),
		}
	}

	userAgent := payload.Base().UserAgent
	analysis := Analysis{
		OperatingSystem: user_agent.ClassifyOperatingSystem(userAgent),
		Browser:         user_agent.ClassifyBrowser(userAgent),
	}

	if analysis.OperatingSystem.Name == user_agent.OSAndroid && analysis.Browser.Name == user_agent.BrowserSafari {
		analysis.Browser.Name = user_agent.BrowserAndroidBrowser
	}

	if v2, ok := payload.(*GameInitPayloadV2); ok {
		if analysis.Browser.Context != user_agent.ContextNWJS && v2.DisplayMode == DisplayModeStandalone {
			analysis.Browser.Context = user_agent.ContextWebApp
		}
		if analysis.OperatingSystem.Name == user_agent.OSMacOS && v2.MaxTouchPoints > 2 {
			analysis.OperatingSystem = user_agent.OperatingSystem{
				Name:    user_agent.OSIOS,
				Version: analysis.Browser.Version,
			}
		}
	}

	return analysis
}

// Device system buckets of stats.SystemStats.
const (
	SystemAndroid = "android"
	SystemApple   = "apple"
	SystemWindows = "windows"
	SystemOthers  = "others"
)

// SystemBucket returns the stats system bucket an operating system counts towards.
func SystemBucket(os user_agent.OperatingSystem) string {
	switch os.Name {
	case user_agent.OSAndroid:
		return SystemAndroid
	case user_agent.OSIOS, user_agent.OSMacOS:
		return SystemApple
	case user_agent.OSWindows:
		return SystemWindows
	default:
		return SystemOthers
	}
}
