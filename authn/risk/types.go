// Package risk implements login risk assessment (spec §4.6 item 2):
// a 0-100 score derived from login-context factors, bucketed into a
// Level, grounded on the teacher's device-posture collectors plus new
// velocity/impossible-travel/known-bad-IP checks.
package risk

import (
	"context"
	"time"

	"github.com/vaultcore/usp/mdm"
)

// Level buckets a Score into a coarse risk tier.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// LevelForScore buckets score (0-100) into a Level.
func LevelForScore(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 20:
		return LevelMedium
	default:
		return LevelLow
	}
}

// FactorType names one contributing risk signal, per spec §4.6 item 2's
// factor list.
type FactorType string

const (
	FactorNewIP              FactorType = "new_ip"
	FactorNewCountry         FactorType = "new_country"
	FactorImpossibleTravel   FactorType = "impossible_travel"
	FactorVelocity           FactorType = "velocity"
	FactorKnownBadIP         FactorType = "known_bad_ip"
	FactorUnseenDevice       FactorType = "device_fingerprint_unseen"
	FactorTimeOfDayAnomaly   FactorType = "time_of_day_anomaly"

	// FactorDeviceNoncompliant fires when the login's device fingerprint
	// resolves to an MDM-enrolled device failing its compliance policy.
	FactorDeviceNoncompliant FactorType = "device_noncompliant"

	// FactorDeviceUnmanaged fires when DevicePosture has no MDM enrollment
	// record at all for the login's device fingerprint - distinct from
	// FactorUnseenDevice, which only compares against this user's own
	// login history and has no opinion on MDM enrollment.
	FactorDeviceUnmanaged FactorType = "device_unmanaged"
)

// Factor is one triggered signal and the points it contributed.
type Factor struct {
	Type   FactorType
	Points int
	Detail string
}

// Assessment is the output of an Assessor run.
type Assessment struct {
	Level   Level
	Score   int
	Factors []Factor
}

// LoginAttempt is one historical login event used to evaluate velocity,
// impossible travel, and new-IP/country/device factors against.
type LoginAttempt struct {
	IPAddress string
	Country   string
	Device    string
	At        time.Time
}

// History supplies the recent login attempts an Assessor reasons from.
// Implementations typically read from the authn.SessionStore or a
// dedicated login-attempt log.
type History interface {
	RecentLogins(ctx context.Context, userID string, since time.Time) ([]LoginAttempt, error)
}

// BadIPList reports whether an IP is on a known-bad list (e.g. a threat
// feed or a block list maintained by the operator).
type BadIPList interface {
	IsBad(ctx context.Context, ip string) (bool, error)
}

// GeoLocator resolves an IP address to a coarse country code. Returns
// an empty string when the IP cannot be resolved.
type GeoLocator interface {
	CountryForIP(ctx context.Context, ip string) (string, error)
}

// DevicePosture resolves a login's device fingerprint to its MDM
// enrollment and compliance status. mdm.Provider and mdm.MultiProvider
// both satisfy this directly.
type DevicePosture interface {
	// LookupDevice returns the device's posture, or an error satisfying
	// errors.Is against mdm.ErrDeviceNotFound when the fingerprint has no
	// MDM enrollment record at all.
	LookupDevice(ctx context.Context, deviceID string) (*mdm.MDMDeviceInfo, error)
}

// Context is the login attempt being scored.
type Context struct {
	UserID    string
	IPAddress string
	Device    string // device fingerprint, per device.GetDeviceID's format
	At        time.Time
}

// Assessor computes an Assessment for a login Context.
type Assessor interface {
	Assess(ctx context.Context, login Context) (Assessment, error)
}
