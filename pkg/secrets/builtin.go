package secrets

// Patterns are anchored because they are matched against whole values.
var builtin = []*Secret{
	mustCustom("aws-access-key", `^(AKIA|ASIA)[0-9A-Z]{16}$`),
	mustCustom("jwt", `^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	mustCustom("github-pat", `^(ghp_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{36,})$`),
	mustCustom("slack-token", `^xox[abprs]-[A-Za-z0-9-]{10,}$`),
	mustCustom("bearer-token", `^Bearer [A-Za-z0-9\-._~+/]+=*$`),
	mustCustom("hex-session-id", `^([A-Fa-f0-9]{32}|[A-Fa-f0-9]{40}|[A-Fa-f0-9]{64})$`),
	mustCustom("uuid-session-id", `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
}

// Builtin returns the stock catalogue of session and credential shapes. Each
// call hands out fresh Secrets sharing the regexes compiled at init.
func Builtin() []*Secret {
	out := make([]*Secret, len(builtin))
	for i, s := range builtin {
		c := *s
		out[i] = &c
	}
	return out
}
