package billing

// Environment selects which processor account a call is made against.
type Environment string

const (
	Live Environment = "live"
	Test Environment = "test"
)

// EnvironmentFor maps a company's isTest flag to an Environment.
func EnvironmentFor(isTest bool) Environment {
	if isTest {
		return Test
	}
	return Live
}

func (e Environment) String() string { return string(e) }
