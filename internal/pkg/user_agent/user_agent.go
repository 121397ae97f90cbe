package user_agent

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

type BrowserName string

const (
	BrowserChromium       BrowserName = "Chromium"
	BrowserChrome         BrowserName = "Chrome"
	BrowserEdge           BrowserName = "Edge"
	BrowserOpera          BrowserName = "Opera"
	BrowserNWJS           BrowserName = "NW.js"
	BrowserFirefox        BrowserName = "Firefox"
	BrowserSafari         BrowserName = "Safari"
	BrowserChromeIOS      BrowserName = "Chrome for iOS"
	BrowserEdgeIOS        BrowserName = "Edge for iOS"
	BrowserFirefoxIOS     BrowserName = "Firefox for iOS"
	BrowserAndroidBrowser BrowserName = "Android Browser"
	BrowserUnknown        BrowserName = "Unknown"
)

type Engine string

const (
	EngineChromium Engine = "Chromium"
	EngineGecko    Engine = "Gecko"
	EngineWebKit   Engine = "WebKit"
	EngineUnknown  Engine = "Unknown"
)

type Context string

const (
	ContextBrowser Context = "Browser"
	ContextNWJS    Context = "NW.js"
	ContextWebApp  Context = "WebApp"
	ContextWebView Context = "WebView"
	ContextUnknown Context = "Unknown"
)

type OSName string

const (
	OSWindows  OSName = "Windows"
	OSMacOS    OSName = "macOS"
	OSIOS      OSName = "iOS"
	OSAndroid  OSName = "Android"
	OSLinux    OSName = "Linux"
	OSChromeOS OSName = "Chrome OS"
	OSUnknown  OSName = "Unknown"
)

// UnknownVersion is reported when a rule captures no version.
const UnknownVersion = "Unknown"

type Browser struct {
	Name    BrowserName `json:"name"`
	Version string      `json:"version"`
	Engine  Engine      `json:"engine"`
	Context Context     `json:"context"`
}

type OperatingSystem struct {
	Name    OSName `json:"name"`
	Version string `json:"version"`
}

// UnknownBrowser returns the result reported when no browser rule matches.
func UnknownBrowser() Browser {
	return Browser{Name: BrowserUnknown, Version: UnknownVersion, Engine: EngineUnknown, Context: ContextUnknown}
}

// UnknownOperatingSystem returns the result reported when no OS rule matches.
func UnknownOperatingSystem() OperatingSystem {
	return OperatingSystem{Name: OSUnknown, Version: UnknownVersion}
}

// Embed the rule databases
//
//go:embed database/browsers.yml
//go:embed database/oss.yml
var databaseFiles embed.FS

// Browser entry structure
type BrowserEntry struct {
	Regex         string         `yaml:"regex"`
	CaseSensitive bool           `yaml:"case_sensitive"`
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	Engine        string         `yaml:"engine"`
	Context       string         `yaml:"context"`
	Variants      []BrowserEntry `yaml:"variants"`
}

// OS entry structure
type OSEntry struct {
	Regex         string `yaml:"regex"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Transform     string `yaml:"transform"`
}

type browserRule struct {
	entry    BrowserEntry
	pattern  *pcre.Regexp
	variants []browserRule
}

type osRule struct {
	entry     OSEntry
	pattern   *pcre.Regexp
	transform func(string) string
}

var transforms = map[string]func(string) string{
	"windows":     windowsVersion,
	"underscores": func(v string) string { return strings.ReplaceAll(v, "_", ".") },
}

// Classifier resolves browsers and operating systems with ordered,
// first-match-wins rule lists. It is read-only once built.
type Classifier struct {
	browsers []browserRule
	oss      []osRule
}

// NewClassifier loads and compiles the embedded rule databases.
func NewClassifier() (*Classifier, error) {
	var browserEntries []BrowserEntry
	if err := loadDatabase("database/browsers.yml", &browserEntries); err != nil {
		return nil, err
	}
	var osEntries []OSEntry
	if err := loadDatabase("database/oss.yml", &osEntries); err != nil {
		return nil, err
	}
	return NewClassifierFromEntries(browserEntries, osEntries)
}

// NewClassifierFromEntries compiles the given rules, keeping their order.
func NewClassifierFromEntries(browserEntries []BrowserEntry, osEntries []OSEntry) (*Classifier, error) {
	c := &Classifier{}

	for _, entry := range browserEntries {
		rule, err := compileBrowserRule(entry)
		if err != nil {
			return nil, err
		}
		c.browsers = append(c.browsers, rule)
	}

	for _, entry := range osEntries {
		pattern, err := compile(entry.Regex, entry.CaseSensitive)
		if err != nil {
			return nil, err
		}
		rule := osRule{entry: entry, pattern: pattern}
		if entry.Transform != "" {
			transform, ok := transforms[entry.Transform]
			if !ok {
				return nil, fmt.Errorf("unknown version transform %q for %q", entry.Transform, entry.Regex)
			}
			rule.transform = transform
		}
		c.oss = append(c.oss, rule)
	}

	return c, nil
}

func loadDatabase(name string, out any) error {
	data, err := databaseFiles.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func compile(regex string, caseSensitive bool) (*pcre.Regexp, error) {
	if !caseSensitive {
		regex = "(?i)" + regex
	}
	pattern, err := pcre.Compile(regex)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", regex, err)
	}
	return pattern, nil
}

func compileBrowserRule(entry BrowserEntry) (browserRule, error) {
	pattern, err := compile(entry.Regex, entry.CaseSensitive)
	if err != nil {
		return browserRule{}, err
	}

	rule := browserRule{entry: entry, pattern: pattern}
	for _, variant := range entry.Variants {
		compiled, err := compileBrowserRule(variant)
		if err != nil {
			return browserRule{}, err
		}
		rule.variants = append(rule.variants, compiled)
	}
	return rule, nil
}

// expandVersion replaces $1, $2, etc. with the matching capture groups.
func expandVersion(template string, matches []string) string {
	version := template
	for i := len(matches) - 1; i >= 1; i-- {
		version = strings.ReplaceAll(version, "$"+strconv.Itoa(i), matches[i])
	}
	if version == "" {
		return UnknownVersion
	}
	return version
}

func (r browserRule) resolve(userAgent string, matches []string) Browser {
	result := Browser{
		Name:    BrowserName(r.entry.Name),
		Version: expandVersion(r.entry.Version, matches),
		Engine:  Engine(r.entry.Engine),
		Context: Context(r.entry.Context),
	}

	for _, variant := range r.variants {
		variantMatches := variant.pattern.FindStringSubmatch(userAgent)
		if len(variantMatches) == 0 {
			continue
		}
		if len(variantMatches) == 1 {
			variantMatches = matches
		}

		if variant.entry.Name != "" {
			result.Name = BrowserName(variant.entry.Name)
		}
		if variant.entry.Version != "" {
			result.Version = expandVersion(variant.entry.Version, variantMatches)
		}
		if variant.entry.Engine != "" {
			result.Engine = Engine(variant.entry.Engine)
		}
		if variant.entry.Context != "" {
			result.Context = Context(variant.entry.Context)
		}
		break
	}
	return result
}

// Browser returns the result of the first browser rule matching userAgent.
func (c *Classifier) Browser(userAgent string) Browser {
	for _, rule := range c.browsers {
		if matches := rule.pattern.FindStringSubmatch(userAgent); len(matches) > 0 {
			return rule.resolve(userAgent, matches)
		}
	}
	return UnknownBrowser()
}

// OperatingSystem returns the result of the first OS rule matching userAgent.
func (c *Classifier) OperatingSystem(userAgent string) OperatingSystem {
	for _, rule := range c.oss {
		if matches := rule.pattern.FindStringSubmatch(userAgent); len(matches) > 0 {
			version := expandVersion(rule.entry.Version, matches)
			if rule.transform != nil && version != UnknownVersion {
				version = rule.transform(version)
			}
			return OperatingSystem{Name: OSName(rule.entry.Name), Version: version}
		}
	}
	return UnknownOperatingSystem()
}

var windowsVersions = map[float64]string{
	5:   "2000",
	5.1: "XP",
	5.2: "XP",
	6:   "Vista",
	6.1: "7",
	6.2: "8",
	6.3: "8.1",
	10:  "10",
}

// windowsVersion maps an NT kernel version to the Windows release name.
// Unmapped kernel versions from 11 on are reported as Windows 11.
func windowsVersion(version string) string {
	number, ok := leadingNumber(version)
	if !ok {
		return "NT " + version
	}
	if name, ok := windowsVersions[number]; ok {
		return name
	}
	if number >= 11 {
		return "11"
	}
	return "NT " + strconv.FormatFloat(number, 'f', -1, 64)
}

// leadingNumber parses the longest "digits[.digits]" prefix of s.
func leadingNumber(s string) (float64, bool) {
	end, dot := 0, false
	for end < len(s) {
		ch := s[end]
		if ch == '.' && !dot && end > 0 {
			dot = true
		} else if ch < '0' || ch > '9' {
			break
		}
		end++
	}
	prefix := strings.TrimSuffix(s[:end], ".")
	if prefix == "" {
		return 0, false
	}
	number, err := strconv.ParseFloat(prefix, 64)
	return number, err == nil
}

// Global classifier instance
var (
	classifier *Classifier
	loadErr    error
	once       sync.Once
)

func getClassifier() (*Classifier, error) {
	once.Do(func() {
		classifier, loadErr = NewClassifier()
	})
	return classifier, loadErr
}

// ClassifyBrowser classifies userAgent with the embedded rules.
func ClassifyBrowser(userAgent string) Browser {
	c, err := getClassifier()
	if err != nil {
		return UnknownBrowser()
	}
	return c.Browser(userAgent)
}

// ClassifyOperatingSystem classifies userAgent with the embedded rules.
func ClassifyOperatingSystem(userAgent string) OperatingSystem {
	c, err := getClassifier()
	if err != nil {
		return UnknownOperatingSystem()
	}
	return c.OperatingSystem(userAgent)
}

// Validate reports whether the embedded rule databases load and compile.
func Validate() error {
	_, err := getClassifier()
	return err
}
