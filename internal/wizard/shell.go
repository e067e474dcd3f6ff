package wizard

// PillState is the rendering state of a step pill.
type PillState string

const (
	PillCompleted PillState = "completed"
	PillCurrent   PillState = "current"
	PillUpcoming  PillState = "upcoming"
)

// Pill is one entry of the step navigation.
type Pill struct {
	Step      Step      `json:"step"`
	Name      string    `json:"name"`
	State     PillState `json:"state"`
	Clickable bool      `json:"clickable"`
}

// View is what the wizard shell renders for a session.
type View struct {
	Step        Step       `json:"step"`
	StepName    string     `json:"step_name"`
	Progress    int        `json:"progress"`
	Pills       []Pill     `json:"pills"`
	CanContinue bool       `json:"can_continue"`
	Direction   int        `json:"direction"`
	Modalities  []Modality `json:"modalities,omitempty"`
	Session     Session    `json:"session"`
}

// NewView builds the shell view. t is the transition that produced the
// current step, if any; only its direction is kept.
func NewView(sess Session, rules Rules, t Transition) View {
	sess.Honeypot = ""
	v := View{
		Step:        sess.Step,
		StepName:    sess.Step.Name(),
		Progress:    progress(sess.Step),
		CanContinue: sess.Step < StepDetails && CanProceedFrom(sess, rules),
		Direction:   t.Direction(),
		Session:     sess,
	}
	if sess.PatientType != "" {
		v.Modalities = ModalitiesFor(sess.PatientType)
	}

	// The success step has no pill of its own.
	for step := FirstStep; step < StepSuccess; step++ {
		pill := Pill{Step: step, Name: step.Name()}
		switch {
		case step < sess.Step:
			pill.State = PillCompleted
			pill.Clickable = sess.Step != StepSuccess && !sess.IsSubmitting
		case step == sess.Step:
			pill.State = PillCurrent
		default:
			pill.State = PillUpcoming
		}
		v.Pills = append(v.Pills, pill)
	}
	return v
}

func progress(step Step) int {
	if !step.Valid() {
		return 0
	}
	return int(step-FirstStep) * 100 / int(LastStep-FirstStep)
}
