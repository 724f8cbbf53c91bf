package engine

// SkillsMatch reports whether a provider's offered skills satisfy an
// appointment's requirements. An empty requirement set means any provider
// qualifies. Total over finite sets, no failure modes.
func SkillsMatch(required, offered []string) bool {
	if len(required) == 0 {
		return true
	}
	if len(offered) == 0 {
		return false
	}

	set := make(map[string]struct{}, len(offered))
	for _, s := range offered {
		set[s] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}
