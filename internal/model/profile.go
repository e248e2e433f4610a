package model

// StemProfile selects how many stems the separation engine produces.
// More stems means a larger model and a bigger memory footprint.
type StemProfile string

const (
	ProfileTwoStems  StemProfile = "2stems"
	ProfileFourStems StemProfile = "4stems"
	ProfileFiveStems StemProfile = "5stems"
)

var ValidProfiles = []StemProfile{
	ProfileTwoStems, ProfileFourStems, ProfileFiveStems,
}

// Stems returns the stem count for the profile.
func (p StemProfile) Stems() int {
	switch p {
	case ProfileFiveStems:
		return 5
	case ProfileFourStems:
		return 4
	default:
		return 2
	}
}

// NormalizeProfile maps a client-supplied stems value onto a supported
// profile. Unknown values fall back to 2stems, and anything above
// maxStems is downgraded to the nearest cheaper profile so a single
// oversized request cannot blow the memory ceiling. The caller is told
// which profile will actually run via the submission response.
func NormalizeProfile(requested string, maxStems int) StemProfile {
	var p StemProfile
	switch requested {
	case "2", "2stems":
		p = ProfileTwoStems
	case "4", "4stems":
		p = ProfileFourStems
	case "5", "5stems":
		p = ProfileFiveStems
	default:
		p = ProfileTwoStems
	}
	for p.Stems() > maxStems {
		switch p {
		case ProfileFiveStems:
			p = ProfileFourStems
		case ProfileFourStems:
			p = ProfileTwoStems
		default:
			return ProfileTwoStems
		}
	}
	return p
}
