package typereg

import "slices"

// AddClassCacheFunc registers fn to run when the last reference to a class
// is about to be released. If fn returns true the class stays alive and fn
// owns that reference; it releases it later with ClassUnrefUncached.
func (r *Registry) AddClassCacheFunc(data any, fn ClassCacheFunc) HookID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHook++
	r.classCaches = append(r.classCaches, classCacheHook{id: r.nextHook, data: data, fn: fn})
	return r.nextHook
}

// RemoveClassCacheFunc unregisters a class-cache hook.
func (r *Registry) RemoveClassCacheFunc(id HookID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.classCaches, func(h classCacheHook) bool { return h.id == id })
	if i < 0 {
		r.log.Warn("cannot remove unregistered class cache hook", "hook", uint64(id))
		return false
	}
	r.classCaches = slices.Delete(r.classCaches, i, i+1)
	return true
}

// AddInterfaceCheckFunc registers fn to run after every interface vtable of
// a class is initialized.
func (r *Registry) AddInterfaceCheckFunc(data any, fn InterfaceCheckFunc) HookID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHook++
	r.ifaceChecks = append(r.ifaceChecks, ifaceCheckHook{id: r.nextHook, data: data, fn: fn})
	return r.nextHook
}

// RemoveInterfaceCheckFunc unregisters an interface-check hook.
func (r *Registry) RemoveInterfaceCheckFunc(id HookID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.ifaceChecks, func(h ifaceCheckHook) bool { return h.id == id })
	if i < 0 {
		r.log.Warn("cannot remove unregistered interface check hook", "hook", uint64(id))
		return false
	}
	r.ifaceChecks = slices.Delete(r.ifaceChecks, i, i+1)
	return true
}
