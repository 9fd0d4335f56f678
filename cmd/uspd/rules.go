package main

import (
	"strings"

	"github.com/vaultcore/usp/pam/session"
)

// suspiciousCommandRules returns the default SuspiciousRule set recorded
// sessions are evaluated against. It is a starting set grounded in
// common privileged-session abuse patterns (escalation, tamper,
// exfiltration-shaped commands), not an exhaustive detection engine -
// spec's session module only requires the hook exists and latches, not
// that uspd ship a complete ruleset.
func suspiciousCommandRules() []session.SuspiciousRule {
	privilegeEscalation := []string{"sudo su", "su -", "sudo -i", "sudo bash", "setuid"}
	tamper := []string{"rm -rf /", "history -c", "shred ", "> /var/log", "unset HISTFILE"}
	exfiltration := []string{"curl -T", "scp ", "nc -l", "base64 -d"}

	return []session.SuspiciousRule{
		session.RuleFunc{RuleName: "privilege-escalation", Fn: containsAny(privilegeEscalation)},
		session.RuleFunc{RuleName: "log-tampering", Fn: containsAny(tamper)},
		session.RuleFunc{RuleName: "exfiltration-pattern", Fn: containsAny(exfiltration)},
	}
}

func containsAny(needles []string) func(cmd *session.SessionCommand) bool {
	return func(cmd *session.SessionCommand) bool {
		lower := strings.ToLower(cmd.Command)
		for _, n := range needles {
			if strings.Contains(lower, strings.ToLower(n)) {
				return true
			}
		}
		return false
	}
}
