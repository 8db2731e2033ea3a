package typereg

// Plugin supplies type and interface information on demand for dynamically
// registered types. The registry calls Use before the first completion of a
// payload and Unuse after that payload is torn down, so a plugin may load and
// unload its backing code around them. No registry lock is held during any
// Plugin call; a plugin may query the registry but must not construct the
// payload it is completing.
//
// Completion errors and completed infos that are invalid, or whose sizes
// differ from an earlier completion of the same type, are fatal.
type Plugin interface {
	Use()
	Unuse()
	CompleteTypeInfo(t TypeID) (TypeInfo, error)
	CompleteInterfaceInfo(instanceType, ifaceType TypeID) (InterfaceInfo, error)
}
