package skill

// topologicalSort computes execution_levels: level i holds every stage
// whose input_from is fully satisfied by levels < i, per spec §4.5/§8.
// Stages within one level are mutually independent and may run in
// parallel. Detects cycles via Kahn's algorithm: any stage left unplaced
// once no more in-degree-zero stages remain is part of a cycle.
func topologicalSort(sk *Skill) ([][]string, error) {
	indegree := make(map[string]int, len(sk.Stages))
	dependents := make(map[string][]string, len(sk.Stages))
	order := make([]string, 0, len(sk.Stages))

	for _, st := range sk.Stages {
		indegree[st.Name] = len(st.InputFrom)
		order = append(order, st.Name)
	}
	for _, st := range sk.Stages {
		for _, dep := range st.InputFrom {
			dependents[dep] = append(dependents[dep], st.Name)
		}
	}

	placed := make(map[string]bool, len(sk.Stages))
	var levels [][]string

	remaining := len(sk.Stages)
	for remaining > 0 {
		var level []string
		for _, name := range order {
			if !placed[name] && indegree[name] == 0 {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			return nil, &SkillCycleError{CyclePath: unplacedStages(order, placed)}
		}
		for _, name := range level {
			placed[name] = true
			remaining--
			for _, dep := range dependents[name] {
				indegree[dep]--
			}
		}
		levels = append(levels, level)
	}

	return levels, nil
}

func unplacedStages(order []string, placed map[string]bool) []string {
	var out []string
	for _, name := range order {
		if !placed[name] {
			out = append(out, name)
		}
	}
	return out
}
