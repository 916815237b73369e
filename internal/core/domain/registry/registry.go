package registry

import "cobalt/pkg/cobalterr"

// Registry is the immutable catalog built once from a CobaltConfig at
// process start (spec.md §4.1). It is never mutated after construction, so
// every lookup is safe to call from arbitrary goroutines without locking.
type Registry struct {
	customersByID   map[uint32]Customer
	customersByName map[string]uint32
}

// New builds a Registry from a flat list of customers. Callers typically
// obtain the list by parsing a CobaltConfig (an external collaborator per
// spec.md §1 — this package only consumes the already-parsed result).
func New(customers []Customer) *Registry {
	r := &Registry{
		customersByID:   make(map[uint32]Customer, len(customers)),
		customersByName: make(map[string]uint32, len(customers)),
	}
	for _, c := range customers {
		r.customersByID[c.ID] = c
		r.customersByName[c.Name] = c.ID
	}
	return r
}

// GetCustomer resolves a customer by numeric id.
func (r *Registry) GetCustomer(id uint32) (Customer, error) {
	c, ok := r.customersByID[id]
	if !ok {
		return Customer{}, cobalterr.NewNotFound("customer")
	}
	return c, nil
}

// GetCustomerByName resolves a customer by name.
func (r *Registry) GetCustomerByName(name string) (Customer, error) {
	id, ok := r.customersByName[name]
	if !ok {
		return Customer{}, cobalterr.NewNotFound("customer")
	}
	return r.customersByID[id], nil
}

// GetProject resolves a project within a customer by numeric id.
func (r *Registry) GetProject(customerID, projectID uint32) (Project, error) {
	c, err := r.GetCustomer(customerID)
	if err != nil {
		return Project{}, err
	}
	for _, p := range c.Projects {
		if p.ID == projectID {
			return p, nil
		}
	}
	return Project{}, cobalterr.NewNotFound("project")
}

// GetProjectByName resolves a project within a customer by name.
func (r *Registry) GetProjectByName(customerID uint32, name string) (Project, error) {
	c, err := r.GetCustomer(customerID)
	if err != nil {
		return Project{}, err
	}
	for _, p := range c.Projects {
		if p.Name == name {
			return p, nil
		}
	}
	return Project{}, cobalterr.NewNotFound("project")
}

// GetMetric resolves a metric within a project by numeric id.
func (r *Registry) GetMetric(customerID, projectID, metricID uint32) (Metric, error) {
	p, err := r.GetProject(customerID, projectID)
	if err != nil {
		return Metric{}, err
	}
	for _, m := range p.Metrics {
		if m.ID == metricID {
			return m, nil
		}
	}
	return Metric{}, cobalterr.NewNotFound("metric")
}

// IterMetrics returns every metric declared by a project, in declaration
// order. The slice is a defensive copy; callers may not mutate the
// registry through it.
func (r *Registry) IterMetrics(customerID, projectID uint32) ([]Metric, error) {
	p, err := r.GetProject(customerID, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]Metric, len(p.Metrics))
	copy(out, p.Metrics)
	return out, nil
}

// GetReport resolves a report within a metric by numeric id.
func (r *Registry) GetReport(customerID, projectID, metricID, reportID uint32) (Report, error) {
	m, err := r.GetMetric(customerID, projectID, metricID)
	if err != nil {
		return Report{}, err
	}
	for _, rep := range m.Reports {
		if rep.ID == reportID {
			return rep, nil
		}
	}
	return Report{}, cobalterr.NewNotFound("report")
}
