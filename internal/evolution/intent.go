package evolution

import "regexp"

// Intent is the classified reason an evolution step was triggered.
type Intent string

const (
	IntentAdapt    Intent = "adapt"
	IntentRepair   Intent = "repair"
	IntentExplore  Intent = "explore"
	IntentOptimize Intent = "optimize"
)

// CrashLog is one observed worker crash-log entry.
type CrashLog struct {
	Content string
}

// ClassifyInput bundles the observed signals the classifier consumes.
type ClassifyInput struct {
	Survived         bool
	IsPlateaued      bool
	PersistentErrors []string
	CrashLogs        []CrashLog
	Directive        string
}

// Classification is the classifier's output: an intent tag plus the
// signals that produced it.
type Classification struct {
	Intent  Intent
	Signals []string
}

var errorPattern = regexp.MustCompile(`\b(\w*Error|\w*Exception)\b`)

// ClassifyIntent maps observed signals to an Intent, in the priority
// order spec §4.5 defines. First match wins.
func ClassifyIntent(in ClassifyInput) Classification {
	// 1. Directive overrides everything.
	if in.Directive != "" {
		prefix := in.Directive
		if len(prefix) > 80 {
			prefix = prefix[:80]
		}
		return Classification{Intent: IntentAdapt, Signals: []string{"directive: " + prefix}}
	}

	// 2. Crashed — repair.
	if !in.Survived {
		signals := extractErrorSignals(in.CrashLogs)
		for i, err := range in.PersistentErrors {
			if i >= 3 {
				break
			}
			signals = append(signals, truncate(err, 120))
		}
		if len(signals) == 0 {
			signals = []string{"crashed"}
		}
		return Classification{Intent: IntentRepair, Signals: signals}
	}

	// 3. Persistent errors even though survived.
	if len(in.PersistentErrors) > 0 {
		var signals []string
		for i, err := range in.PersistentErrors {
			if i >= 3 {
				break
			}
			signals = append(signals, truncate(err, 120))
		}
		return Classification{Intent: IntentRepair, Signals: signals}
	}

	// 4. Plateau.
	if in.IsPlateaued {
		return Classification{Intent: IntentExplore, Signals: []string{"plateau"}}
	}

	// 5. Default — survived, no issues.
	return Classification{Intent: IntentOptimize, Signals: []string{"survived"}}
}

func extractErrorSignals(logs []CrashLog) []string {
	seen := make(map[string]bool)
	var signals []string
	for i, entry := range logs {
		if i >= 3 {
			break
		}
		for _, match := range errorPattern.FindAllString(entry.Content, -1) {
			if !seen[match] {
				seen[match] = true
				signals = append(signals, match)
			}
		}
	}
	return signals
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
