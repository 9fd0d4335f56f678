package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaultcore/usp/mdm"
)

// lookbackWindow bounds how far back History.RecentLogins is asked to look.
const lookbackWindow = 30 * 24 * time.Hour

// velocityWindow is the interval within which more than
// maxLoginsPerWindow logins trigger FactorVelocity.
const velocityWindow = 5 * time.Minute

// maxLoginsPerWindow caps normal login frequency before velocity scoring kicks in.
const maxLoginsPerWindow = 3

// impossibleTravelMinMinutes is the minimum time a country change must
// span before it's no longer flagged as impossible travel.
const impossibleTravelMinMinutes = 60

// DefaultAssessor implements Assessor from a History of recent logins
// plus optional BadIPList/GeoLocator/DevicePosture providers. Each
// provider may be nil, in which case the factor it backs is simply
// never triggered - the same "degrade gracefully when unconfigured"
// shape mfa's provider-delegated Verifiers use.
type DefaultAssessor struct {
	history History
	badIPs  BadIPList
	geo     GeoLocator
	devices DevicePosture
}

// NewDefaultAssessor builds a DefaultAssessor. badIPs, geo, and devices
// may be nil.
func NewDefaultAssessor(history History, badIPs BadIPList, geo GeoLocator, devices DevicePosture) *DefaultAssessor {
	return &DefaultAssessor{history: history, badIPs: badIPs, geo: geo, devices: devices}
}

// Assess scores login against the user's recent history.
func (a *DefaultAssessor) Assess(ctx context.Context, login Context) (Assessment, error) {
	since := login.At.Add(-lookbackWindow)
	history, err := a.history.RecentLogins(ctx, login.UserID, since)
	if err != nil {
		return Assessment{}, fmt.Errorf("risk: loading login history: %w", err)
	}

	var factors []Factor

	country := ""
	if a.geo != nil {
		country, _ = a.geo.CountryForIP(ctx, login.IPAddress)
	}

	if f := newIPFactor(history, login); f != nil {
		factors = append(factors, *f)
	}
	if country != "" {
		if f := newCountryFactor(history, country); f != nil {
			factors = append(factors, *f)
		}
		if f := impossibleTravelFactor(history, login, country); f != nil {
			factors = append(factors, *f)
		}
	}
	if f := velocityFactor(history, login); f != nil {
		factors = append(factors, *f)
	}
	if a.badIPs != nil {
		bad, err := a.badIPs.IsBad(ctx, login.IPAddress)
		if err != nil {
			return Assessment{}, fmt.Errorf("risk: checking bad IP list: %w", err)
		}
		if bad {
			factors = append(factors, Factor{Type: FactorKnownBadIP, Points: 40, Detail: login.IPAddress})
		}
	}
	if f := unseenDeviceFactor(history, login); f != nil {
		factors = append(factors, *f)
	}
	if a.devices != nil && login.Device != "" {
		f, err := a.devicePostureFactor(ctx, login)
		if err != nil {
			return Assessment{}, fmt.Errorf("risk: checking device posture: %w", err)
		}
		if f != nil {
			factors = append(factors, *f)
		}
	}
	if f := timeOfDayAnomalyFactor(history, login); f != nil {
		factors = append(factors, *f)
	}

	score := 0
	for _, f := range factors {
		score += f.Points
	}
	if score > 100 {
		score = 100
	}

	return Assessment{Level: LevelForScore(score), Score: score, Factors: factors}, nil
}

func newIPFactor(history []LoginAttempt, login Context) *Factor {
	for _, h := range history {
		if h.IPAddress == login.IPAddress {
			return nil
		}
	}
	if len(history) == 0 {
		return nil // first-ever login has no baseline to be "new" against
	}
	return &Factor{Type: FactorNewIP, Points: 10, Detail: login.IPAddress}
}

func newCountryFactor(history []LoginAttempt, country string) *Factor {
	seenAny := false
	for _, h := range history {
		if h.Country == "" {
			continue
		}
		seenAny = true
		if h.Country == country {
			return nil
		}
	}
	if !seenAny {
		return nil
	}
	return &Factor{Type: FactorNewCountry, Points: 15, Detail: country}
}

func impossibleTravelFactor(history []LoginAttempt, login Context, country string) *Factor {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Country == "" || last.Country == country {
		return nil
	}
	elapsed := login.At.Sub(last.At)
	if elapsed >= impossibleTravelMinMinutes*time.Minute {
		return nil
	}
	return &Factor{
		Type: FactorImpossibleTravel, Points: 35,
		Detail: fmt.Sprintf("%s -> %s in %s", last.Country, country, elapsed),
	}
}

func velocityFactor(history []LoginAttempt, login Context) *Factor {
	count := 0
	for _, h := range history {
		if login.At.Sub(h.At) <= velocityWindow {
			count++
		}
	}
	if count < maxLoginsPerWindow {
		return nil
	}
	return &Factor{Type: FactorVelocity, Points: 25, Detail: fmt.Sprintf("%d logins in %s", count+1, velocityWindow)}
}

// devicePostureFactor queries a.devices for login.Device's MDM status.
// An unenrolled device is scored lower than a non-compliant one: the
// operator may simply not require MDM enrollment for every device class,
// whereas a known-enrolled device failing its compliance policy is a
// stronger signal.
func (a *DefaultAssessor) devicePostureFactor(ctx context.Context, login Context) (*Factor, error) {
	info, err := a.devices.LookupDevice(ctx, login.Device)
	if errors.Is(err, mdm.ErrDeviceNotFound) {
		return &Factor{Type: FactorDeviceUnmanaged, Points: 10, Detail: login.Device}, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.Compliant {
		return &Factor{Type: FactorDeviceNoncompliant, Points: 30, Detail: info.ComplianceDetails}, nil
	}
	return nil, nil
}

func unseenDeviceFactor(history []LoginAttempt, login Context) *Factor {
	if login.Device == "" || len(history) == 0 {
		return nil
	}
	for _, h := range history {
		if h.Device == login.Device {
			return nil
		}
	}
	return &Factor{Type: FactorUnseenDevice, Points: 15, Detail: login.Device}
}

// timeOfDayAnomalyFactor flags a login more than 6 hours away from every
// historical login's hour-of-day, a coarse proxy for "this user has
// never logged in at this time before".
func timeOfDayAnomalyFactor(history []LoginAttempt, login Context) *Factor {
	if len(history) < 5 {
		return nil // not enough history to establish a pattern
	}
	hour := login.At.UTC().Hour()
	minDelta := 24
	for _, h := range history {
		delta := abs(h.At.UTC().Hour() - hour)
		if delta > 12 {
			delta = 24 - delta
		}
		if delta < minDelta {
			minDelta = delta
		}
	}
	if minDelta <= 6 {
		return nil
	}
	return &Factor{Type: FactorTimeOfDayAnomaly, Points: 10, Detail: fmt.Sprintf("hour %d", hour)}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
