package shuttle

import "fmt"

// ValidateCapacity checks that passengers plus the guard seat never exceed
// vehicle capacity.
func ValidateCapacity(r *Route) error {
	if r.Error != "" {
		return nil
	}
	if r.Occupancy() > r.VehicleCapacity {
		return fmt.Errorf("route %s: occupancy %d exceeds capacity %d", r.UniqueKey, r.Occupancy(), r.VehicleCapacity)
	}
	return nil
}

// ValidateSpecialNeedsHomogeneity checks that a special-needs route carries
// only special-needs employees and at most two passengers (one if guarded).
func ValidateSpecialNeedsHomogeneity(r *Route) error {
	if !r.IsSpecialNeedsRoute {
		return nil
	}
	for _, re := range r.Employees {
		if !re.Employee.IsSpecialNeeds() {
			return fmt.Errorf("route %s: special-needs route contains non-special-needs employee %s", r.UniqueKey, re.Employee.EmpCode)
		}
	}
	limit := 2
	if r.GuardNeeded {
		limit = 1
	}
	if len(r.Employees) > limit {
		return fmt.Errorf("route %s: special-needs route carries %d employees, limit %d", r.UniqueKey, len(r.Employees), limit)
	}
	return nil
}

// ValidateGuardTruthfulness checks that GuardNeeded exactly reflects the
// critical seat's gender, given whether the guard system was active.
func ValidateGuardTruthfulness(r *Route, guardSystemActive bool) error {
	crit := r.CriticalSeatEmployee()
	if crit == nil {
		return nil
	}
	expected := guardSystemActive && crit.Gender == GenderFemale
	if r.GuardNeeded != expected {
		return fmt.Errorf("route %s: guardNeeded=%v but critical seat gender=%s (active=%v)", r.UniqueKey, r.GuardNeeded, crit.Gender, guardSystemActive)
	}
	return nil
}

// ValidateOrderMonotonicity checks that employees[i].Order == i+1.
func ValidateOrderMonotonicity(r *Route) error {
	for i, re := range r.Employees {
		if re.Order != i+1 {
			return fmt.Errorf("route %s: employee at index %d has order %d, want %d", r.UniqueKey, i, re.Order, i+1)
		}
	}
	return nil
}

// ValidateLegCoherence checks that the route carries exactly one leg per
// employee.
func ValidateLegCoherence(r *Route) error {
	if r.Error != "" {
		return nil
	}
	if len(r.Details.Legs) != len(r.Employees) {
		return fmt.Errorf("route %s: %d legs for %d employees", r.UniqueKey, len(r.Details.Legs), len(r.Employees))
	}
	return nil
}

// ValidatePartition checks that routed and unrouted employee codes
// partition the input set exactly: no duplicates, no omissions.
func ValidatePartition(input []*Employee, routes []*Route, unrouted []*Employee) error {
	seen := make(map[string]string, len(input))
	for _, r := range routes {
		for _, re := range r.Employees {
			code := re.Employee.EmpCode
			if prior, ok := seen[code]; ok {
				return fmt.Errorf("employee %s appears in both %s and %s", code, prior, r.UniqueKey)
			}
			seen[code] = r.UniqueKey
		}
	}
	for _, e := range unrouted {
		if prior, ok := seen[e.EmpCode]; ok {
			return fmt.Errorf("employee %s appears in both unrouted and %s", e.EmpCode, prior)
		}
		seen[e.EmpCode] = "unrouted"
	}
	if len(seen) != len(input) {
		return fmt.Errorf("partition mismatch: %d accounted for, %d input", len(seen), len(input))
	}
	for _, e := range input {
		if _, ok := seen[e.EmpCode]; !ok {
			return fmt.Errorf("employee %s missing from both routes and unrouted", e.EmpCode)
		}
	}
	return nil
}

// ValidateRoute runs every per-route invariant and returns the first
// failure, if any.
func ValidateRoute(r *Route, guardSystemActive bool) error {
	if err := ValidateCapacity(r); err != nil {
		return err
	}
	if err := ValidateSpecialNeedsHomogeneity(r); err != nil {
		return err
	}
	if err := ValidateGuardTruthfulness(r, guardSystemActive); err != nil {
		return err
	}
	if err := ValidateOrderMonotonicity(r); err != nil {
		return err
	}
	if err := ValidateLegCoherence(r); err != nil {
		return err
	}
	return nil
}
