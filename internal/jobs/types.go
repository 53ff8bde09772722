package jobs

type JobType string

const (
	// JobSendWelcome greets a newly created student, whether they signed up
	// or an admin added them.
	JobSendWelcome JobType = "send_welcome"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobSendWelcome:
		return true
	default:
		return false
	}
}
