package reconcile

import "errors"

var errNoGroups = errors.New("group collaborator not configured")
