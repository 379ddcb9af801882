package models

// SlotRecord holds the user-owned editable fields for one slot. Fields are
// pointers so "never set" is distinguishable from a set zero value; merge and
// fallback logic works per field, and only fields the user (or a seed from
// the hub) actually wrote are persisted.
type SlotRecord struct {
	Name     *string   `json:"name,omitempty"`
	Code     *string   `json:"code,omitempty"`
	CodeType *CodeType `json:"code_type,omitempty"`
	// Status is the cached slot status (0=available, 1=enabled, 2=disabled).
	Status   *int      `json:"status,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty"`
	// UsageLimit nil means no limit has been set for the slot.
	UsageLimit *int `json:"usage_limit,omitempty"`
}

// Clone returns a deep copy of the record.
func (r SlotRecord) Clone() SlotRecord {
	c := r
	if r.Name != nil {
		v := *r.Name
		c.Name = &v
	}
	if r.Code != nil {
		v := *r.Code
		c.Code = &v
	}
	if r.CodeType != nil {
		v := *r.CodeType
		c.CodeType = &v
	}
	if r.Status != nil {
		v := *r.Status
		c.Status = &v
	}
	if r.Schedule != nil {
		s := Schedule{}
		if r.Schedule.Start != nil {
			t := *r.Schedule.Start
			s.Start = &t
		}
		if r.Schedule.End != nil {
			t := *r.Schedule.End
			s.End = &t
		}
		c.Schedule = &s
	}
	if r.UsageLimit != nil {
		v := *r.UsageLimit
		c.UsageLimit = &v
	}
	return c
}

// IsEmpty reports whether no field has ever been set.
func (r SlotRecord) IsEmpty() bool {
	return r.Name == nil && r.Code == nil && r.CodeType == nil &&
		r.Status == nil && r.Schedule == nil && r.UsageLimit == nil
}

// FillFrom copies fields from other into r for fields r does not have set.
// Fields already present in r win; this is the cached-over-remote precedence
// used when merging a hub snapshot under an in-memory record.
func (r *SlotRecord) FillFrom(other SlotRecord) {
	o := other.Clone()
	if r.Name == nil {
		r.Name = o.Name
	}
	if r.Code == nil {
		r.Code = o.Code
	}
	if r.CodeType == nil {
		r.CodeType = o.CodeType
	}
	if r.Status == nil {
		r.Status = o.Status
	}
	if r.Schedule == nil {
		r.Schedule = o.Schedule
	}
	if r.UsageLimit == nil {
		r.UsageLimit = o.UsageLimit
	}
}

// RecordFromView seeds an editable record from the hub's view of a slot.
func RecordFromView(v SlotView) SlotRecord {
	name := v.Name
	code := v.Code
	codeType := v.CodeType
	if codeType == "" {
		codeType = CodeTypePIN
	}
	status := v.LockStatus
	rec := SlotRecord{
		Name:     &name,
		Code:     &code,
		CodeType: &codeType,
		Status:   &status,
	}
	if !v.Schedule.IsZero() {
		s := v.Schedule
		rec.Schedule = &s
	}
	if v.UsageLimit != nil {
		l := *v.UsageLimit
		rec.UsageLimit = &l
	}
	return rec.Clone()
}
