package arena

// lines holds every winning line: rows, then columns, then diagonals.
var lines = func() [][BoardSize]Coord {
	var out [][BoardSize]Coord
	for r := range BoardSize {
		out = append(out, [BoardSize]Coord{{r, 0}, {r, 1}, {r, 2}})
	}
	for c := range BoardSize {
		out = append(out, [BoardSize]Coord{{0, c}, {1, c}, {2, c}})
	}
	out = append(out,
		[BoardSize]Coord{{0, 0}, {1, 1}, {2, 2}},
		[BoardSize]Coord{{0, 2}, {1, 1}, {2, 0}},
	)
	return out
}()

// Evaluate returns the outcome implied by marks: the first complete line
// wins, a full board without one is a draw, anything else is OutcomeNone.
func Evaluate(marks map[Coord]Mark) Outcome {
	for _, line := range lines {
		first, ok := marks[line[0]]
		if !ok || first == "" {
			continue
		}
		if marks[line[1]] == first && marks[line[2]] == first {
			return outcomeFor(first.Team())
		}
	}
	for _, c := range AllCoords() {
		if marks[c] == "" {
			return OutcomeNone
		}
	}
	return OutcomeDraw
}
