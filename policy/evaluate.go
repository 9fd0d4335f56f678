package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vaultcore/usp/device"
)

// Request represents a credential request to be evaluated.
type Request struct {
	User    string
	Profile string
	Time    time.Time

	// Mode identifies how the request was made (server, cli,
	// credential_process). The zero value matches rules with no Mode
	// condition, but never satisfies an EffectRequireServer/
	// EffectRequireServerSession rule's server-mode requirement.
	Mode CredentialMode

	// SessionTableName is the session-tracking table the caller already
	// has configured. It only affects whether an EffectRequireServerSession
	// rule can be satisfied in server mode; it is never copied into the
	// resulting Decision.
	SessionTableName string

	// DevicePosture is the most recently collected posture for the
	// requesting device, or nil if none is available.
	DevicePosture *device.DevicePosture
}

// Decision represents the outcome of policy evaluation.
type Decision struct {
	Effect      Effect
	MatchedRule string
	Reason      string

	// RuleIndex is the index of the matched rule within Policy.Rules, or
	// -1 for a default deny (no rule matched, nil policy, or nil request).
	RuleIndex int

	// Conditions is the condition set of the matched rule, or nil for a
	// default deny.
	Conditions *Condition

	// EvaluatedAt is when Evaluate produced this decision.
	EvaluatedAt time.Time

	// MaxServerDuration is the matched rule's server-session duration
	// cap, or 0 if unset or no rule matched.
	MaxServerDuration time.Duration

	// SessionTableName is the matched rule's own SessionTable, or empty
	// if the rule didn't specify one.
	SessionTableName string

	// RequiresServerMode is true when the matched rule is
	// EffectRequireServer or EffectRequireServerSession and the request
	// was not made in server mode.
	RequiresServerMode bool

	// RequiresSessionTracking is true when the matched rule is
	// EffectRequireServerSession and the request cannot be tracked in a
	// session table, either because it isn't in server mode or because
	// no session table is configured.
	RequiresSessionTracking bool
}

// String renders the decision the way Sentinel's audit log does.
func (d Decision) String() string {
	if d.MatchedRule == "" {
		return "DENY (no matching rule)"
	}
	verb := "DENY"
	if d.Effect == EffectAllow {
		verb = "ALLOW"
	}
	return fmt.Sprintf("%s by rule '%s' (index %d)", verb, d.MatchedRule, d.RuleIndex)
}

func defaultDeny() Decision {
	return Decision{
		Effect:      EffectDeny,
		MatchedRule: "",
		Reason:      "no matching rule",
		RuleIndex:   -1,
		EvaluatedAt: time.Now(),
	}
}

// Evaluate evaluates a credential request against a policy, returning the
// decision for the first matching rule (first-match-wins, in Rules order),
// or a default deny if no rule matches.
func Evaluate(policy *Policy, req *Request) Decision {
	if policy == nil || req == nil {
		return defaultDeny()
	}

	for i, rule := range policy.Rules {
		if !matchesRule(rule, req) {
			continue
		}

		decision := Decision{
			Effect:            rule.Effect,
			MatchedRule:       rule.Name,
			Reason:            rule.Reason,
			RuleIndex:         i,
			Conditions:        &rule.Conditions,
			EvaluatedAt:       time.Now(),
			MaxServerDuration: rule.MaxServerDuration,
			SessionTableName:  rule.SessionTable,
		}

		switch rule.Effect {
		case EffectRequireServer:
			if req.Mode != ModeServer {
				decision.Effect = EffectDeny
				decision.RequiresServerMode = true
			} else {
				decision.Effect = EffectAllow
			}
		case EffectRequireServerSession:
			notServer := req.Mode != ModeServer
			decision.RequiresServerMode = notServer
			if notServer {
				decision.RequiresSessionTracking = true
			} else {
				decision.RequiresSessionTracking = rule.SessionTable == "" && req.SessionTableName == ""
			}
			if decision.RequiresServerMode || decision.RequiresSessionTracking {
				decision.Effect = EffectDeny
			} else {
				decision.Effect = EffectAllow
			}
		}

		return decision
	}

	return defaultDeny()
}

func matchesRule(rule Rule, req *Request) bool {
	c := rule.Conditions
	if !matchesList(c.Profiles, req.Profile) {
		return false
	}
	if !matchesList(c.Users, req.User) {
		return false
	}
	if c.Time != nil && !matchesTime(c.Time, req.Time) {
		return false
	}
	if !matchesMode(c.Mode, req.Mode) {
		return false
	}
	if c.Device != nil && !c.Device.Matches(req.DevicePosture) {
		return false
	}
	return true
}

// matchesList reports whether value is in list. An empty list matches any
// value.
func matchesList(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// matchesMode reports whether mode is in modes. An empty/nil list matches
// any mode.
func matchesMode(modes []CredentialMode, mode CredentialMode) bool {
	if len(modes) == 0 {
		return true
	}
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

func matchesTime(w *TimeWindow, t time.Time) bool {
	if t.IsZero() {
		t = time.Now()
	}

	loc := time.UTC
	if w.Timezone != "" {
		if tz, err := time.LoadLocation(w.Timezone); err == nil {
			loc = tz
		}
	}
	local := t.In(loc)

	if len(w.Days) > 0 {
		day := goWeekdayToWeekday(local.Weekday())
		found := false
		for _, d := range w.Days {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if w.Hours != nil && !matchesHours(w.Hours, local) {
		return false
	}

	return true
}

func matchesHours(hr *HourRange, t time.Time) bool {
	startH, startM := parseHourMinute(hr.Start)
	endH, endM := parseHourMinute(hr.End)

	nowMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startH*60 + startM
	endMinutes := endH*60 + endM

	// End is exclusive.
	return nowMinutes >= startMinutes && nowMinutes < endMinutes
}

// parseHourMinute parses an "HH:MM" string into hour and minute ints.
// Any malformed segment parses as 0 rather than erroring, since
// TimeWindow.Hours is validated at load time, not at evaluation time.
func parseHourMinute(s string) (int, int) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0
	}
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])
	return hour, minute
}

// goWeekdayToWeekday converts a time.Weekday into the policy package's own
// Weekday type. Returns "" for out-of-range values.
func goWeekdayToWeekday(d time.Weekday) Weekday {
	switch d {
	case time.Sunday:
		return Sunday
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return ""
	}
}
