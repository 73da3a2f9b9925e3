package config

type metrics struct {
	// The host:port that the metrics HTTP listener will bind to.
	Listen *string `toml:"listen"`
}

func (m *metrics) validate(t *top) []string {
	var errors []string

	// Listen
	if m.Listen == nil {
		errors = append(
			errors,
			"metrics.listen is required when the section is present.")
	}

	// Return any errors encountered.
	return errors
}
