package synth

import "math"

// Class labels produced by the generator.
const (
	ClassEmpty    = "empty"
	ClassPresent  = "present"
	ClassMoving   = "moving"
	ClassWalking  = "walking"
	ClassSitting  = "sitting"
	ClassStanding = "standing"
)

// ClassModel parametrizes the noise processes of one activity class. Amplitude and phase
// are drawn per subcarrier from normal distributions whose centre and spread may depend on
// the position i of the sample within the class sequence.
type ClassModel struct {
	Label       string
	Description string

	AmpMean float64
	AmpStd  float64
	// AmpModulation, if set, is added to AmpMean for sample i.
	AmpModulation func(i int) float64

	PhaseStd float64
	// PhaseStdModulation, if set, is added to PhaseStd for sample i.
	PhaseStdModulation func(i int) float64
	// PhaseDrift is the spread of the random-walk step added to the phase centre before
	// every sample. Zero keeps the phase centred on 0.
	PhaseDrift float64
	ClipPhase  bool

	RSSIMean float64
	RSSIStd  float64
}

func walkingTheta(i int) float64 {
	return 2 * math.Pi * float64(i) / 10
}

// Models lists the class models in generation order.
var Models = []ClassModel{
	{
		Label:       ClassEmpty,
		Description: "Empty room - no person present",
		AmpMean:     20.0, AmpStd: 1.5,
		PhaseStd: 0.05,
		RSSIMean: -50, RSSIStd: 2,
	},
	{
		Label:       ClassPresent,
		Description: "Person present, sitting or standing still",
		AmpMean:     25.0, AmpStd: 3.0,
		PhaseStd: 0.2,
		RSSIMean: -42, RSSIStd: 3,
	},
	{
		Label:       ClassMoving,
		Description: "Person moving around",
		AmpMean:     25.0, AmpStd: 4.0,
		AmpModulation: func(i int) float64 {
			return 5.0 * math.Sin(2*math.Pi*float64(i)/20)
		},
		PhaseStd:   0.3,
		PhaseDrift: 0.1,
		ClipPhase:  true,
		RSSIMean:   -40, RSSIStd: 5,
	},
	{
		Label:       ClassWalking,
		Description: "Person walking back and forth",
		AmpMean:     25.0, AmpStd: 3.5,
		AmpModulation: func(i int) float64 {
			theta := walkingTheta(i)
			return 8.0*math.Sin(theta) + 3.0*math.Sin(2*theta)
		},
		PhaseStd: 0.25,
		PhaseStdModulation: func(i int) float64 {
			return 0.15 * math.Sin(walkingTheta(i))
		},
		ClipPhase: true,
		RSSIMean:  -38, RSSIStd: 4,
	},
	{
		Label:       ClassSitting,
		Description: "Person sitting still",
		AmpMean:     23.0, AmpStd: 2.2,
		PhaseStd: 0.15,
		RSSIMean: -44, RSSIStd: 2,
	},
	{
		Label:       ClassStanding,
		Description: "Person standing still",
		AmpMean:     24.0, AmpStd: 2.8,
		PhaseStd: 0.22,
		RSSIMean: -43, RSSIStd: 2.5,
	},
}

// Classes returns the labels of all class models in generation order.
func Classes() []string {
	out := make([]string, len(Models))
	for i, m := range Models {
		out[i] = m.Label
	}
	return out
}

// Lookup returns the model of the named class.
func Lookup(label string) (ClassModel, bool) {
	for _, m := range Models {
		if m.Label == label {
			return m, true
		}
	}
	return ClassModel{}, false
}
