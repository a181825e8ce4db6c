// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Header and script scanning errors.
var (
	// ErrBrokenHeader indicates a BEGIN INIT INFO block with no matching END.
	ErrBrokenHeader = &ServiceError{
		Kind:   ErrParseFatal,
		Detail: "broken LSB comment: missing end of INIT INFO block",
	}

	// ErrEmptyServiceName indicates an empty Provides: token was encountered.
	ErrEmptyServiceName = &ServiceError{
		Kind:   ErrInvalidConfig,
		Detail: "service name cannot be empty",
	}

	// ErrFacilityAll indicates $all was used somewhere other than a plain required token.
	ErrFacilityAll = &ServiceError{
		Kind:   ErrInvalidConfig,
		Detail: "$all is reserved and must not be expanded as a facility group",
	}
)

// Registry and graph errors.
var (
	// ErrServiceNotFound indicates the service does not exist in the registry.
	ErrServiceNotFound = &ServiceError{
		Kind:   ErrNotFound,
		Detail: "service not found",
	}

	// ErrDuplicateService indicates two scripts provide the same service name.
	ErrDuplicateService = &ServiceError{
		Kind:   ErrDuplicateProvider,
		Detail: "service already provided by another script",
	}

	// ErrMissingRequired indicates a MUST dependency is absent from the registry.
	ErrMissingRequired = &ServiceError{
		Kind:   ErrDependencyMissing,
		Detail: "required service is not enabled",
	}
)

// Resolution errors.
var (
	// ErrCycleDetected indicates a back-edge was found during depth resolution.
	ErrCycleDetected = &ServiceError{
		Kind:   ErrCycle,
		Detail: "dependency cycle detected",
	}

	// ErrDepthOverflow99 indicates a final start_depth or stop_depth exceeded 99.
	ErrDepthOverflow99 = &ServiceError{
		Kind:   ErrDepthOverflow,
		Detail: "maximum order of 99 exceeded",
	}

	// ErrDepthCapped indicates a traversal path was abandoned at the depth cap.
	ErrDepthCapped = &ServiceError{
		Kind:   ErrDepthOverflow,
		Detail: "depth cap reached during traversal",
	}
)

// Link-farm reconciliation errors.
var (
	// ErrLinkCreate indicates a symlink could not be created.
	ErrLinkCreate = &ServiceError{
		Kind:   ErrFilesystem,
		Detail: "failed to create symlink",
	}

	// ErrLinkRemove indicates a symlink could not be removed.
	ErrLinkRemove = &ServiceError{
		Kind:   ErrFilesystem,
		Detail: "failed to remove symlink",
	}

	// ErrRunlevelDirMissing indicates a runlevel directory does not exist and could not be created.
	ErrRunlevelDirMissing = &ServiceError{
		Kind:   ErrFilesystem,
		Detail: "runlevel directory missing",
	}

	// ErrMakefileWrite indicates a .depend.* stub could not be written.
	ErrMakefileWrite = &ServiceError{
		Kind:   ErrFilesystem,
		Detail: "failed to write dependency makefile",
	}
)

// Configuration errors.
var (
	// ErrConfigNotFound indicates the primary configuration file is missing.
	ErrConfigNotFound = &ServiceError{
		Kind:   ErrNotFound,
		Detail: "configuration file not found",
	}

	// ErrInvalidFacilityGroup indicates a malformed $group declaration.
	ErrInvalidFacilityGroup = &ServiceError{
		Kind:   ErrInvalidConfig,
		Detail: "invalid facility group declaration",
	}
)
