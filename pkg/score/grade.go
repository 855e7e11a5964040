package score

import "math"

// Grade cut-offs on the 0-100 scale. Each grade spans 15 points except
// the open-ended G bucket.
const (
	gradeA = 90
	gradeB = 75
	gradeC = 60
	gradeD = 45
	gradeE = 30
	gradeF = 15
)

// GradeFromScore maps a composite score onto the A-G letter scale.
func GradeFromScore(score int) string {
	switch {
	case score >= gradeA:
		return "A"
	case score >= gradeB:
		return "B"
	case score >= gradeC:
		return "C"
	case score >= gradeD:
		return "D"
	case score >= gradeE:
		return "E"
	case score >= gradeF:
		return "F"
	default:
		return "G"
	}
}

// GradeRank orders grades best-first: A is 0, G is 6. Unknown grades
// sort last.
func GradeRank(grade string) int {
	switch grade {
	case "A":
		return 0
	case "B":
		return 1
	case "C":
		return 2
	case "D":
		return 3
	case "E":
		return 4
	case "F":
		return 5
	case "G":
		return 6
	default:
		return 7
	}
}

// Score5 converts a 0-100 composite score to the 0-5 display scale,
// rounded to one decimal place.
func Score5(score100 int) float64 {
	return math.Round(float64(score100)/2) / 10
}
