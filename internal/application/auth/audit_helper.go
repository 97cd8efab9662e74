package auth

import (
	"errors"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

func domainCode(err error) string {
	if err == nil {
		return ""
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "non_domain_error"
}

// auditFn returns a recorder for one action that always carries the
// identifier and result, plus the error code on failures.
func (s *Service) auditFn(action, identifier string) func(result string, err error, extra map[string]string) {
	return func(result string, err error, extra map[string]string) {
		fields := map[string]string{
			"identifier": identifier,
			"result":     result,
		}
		if err != nil {
			fields["error_code"] = domainCode(err)
		}
		for k, v := range extra {
			fields[k] = v
		}
		s.audit(action, fields)
	}
}
