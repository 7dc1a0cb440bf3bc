//go:build windows

package scm

import (
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/oshokin/update-service/internal/domain/service"
)

const (
	// triggerManagerAccess is what the trigger needs from the SCM itself.
	triggerManagerAccess = windows.SC_MANAGER_CONNECT | windows.SC_MANAGER_ENUMERATE_SERVICE
	// grantedServiceAccess must match the rights ResetAccess grants.
	grantedServiceAccess = windows.SERVICE_START | windows.SERVICE_STOP | windows.GENERIC_READ
)

// WindowsConnector connects to the local SCM.
type WindowsConnector struct{}

// NewConnector returns the host Connector.
func NewConnector() Connector {
	return WindowsConnector{}
}

// Connect implements Connector.
func (WindowsConnector) Connect(scope Scope) (Manager, error) {
	if scope == ScopeTrigger {
		handle, err := windows.OpenSCManager(nil, nil, triggerManagerAccess)
		if err != nil {
			return nil, Wrap("OpenSCManager", err)
		}

		return &windowsManager{m: &mgr.Mgr{Handle: handle}, scope: scope}, nil
	}

	m, err := mgr.Connect()
	if err != nil {
		return nil, Wrap("OpenSCManager", err)
	}

	return &windowsManager{m: m, scope: scope}, nil
}

type windowsManager struct {
	m     *mgr.Mgr
	scope Scope
}

func (w *windowsManager) OpenService(name string) (Service, error) {
	if w.scope == ScopeTrigger {
		namePtr, err := windows.UTF16PtrFromString(name)
		if err != nil {
			return nil, Wrap("OpenService", err)
		}

		handle, err := windows.OpenService(w.m.Handle, namePtr, grantedServiceAccess)
		if err != nil {
			return nil, Wrap("OpenService", err)
		}

		return &windowsService{s: &mgr.Service{Name: name, Handle: handle}}, nil
	}

	s, err := w.m.OpenService(name)
	if err != nil {
		return nil, Wrap("OpenService", err)
	}

	return &windowsService{s: s}, nil
}

func (w *windowsManager) CreateService(name string, cfg Config) (Service, error) {
	s, err := w.m.CreateService(name, cfg.BinaryPath, mgr.Config{
		ServiceType:  windows.SERVICE_WIN32_OWN_PROCESS,
		StartType:    mgr.StartManual,
		ErrorControl: mgr.ErrorNormal,
		DisplayName:  cfg.DisplayName,
		Description:  cfg.Description,
	})
	if err != nil {
		return nil, Wrap("CreateService", err)
	}

	return &windowsService{s: s}, nil
}

func (w *windowsManager) Close() error {
	return Wrap("CloseServiceHandle", w.m.Disconnect())
}

type windowsService struct {
	s *mgr.Service
}

func (w *windowsService) Query() (Status, error) {
	status, err := w.s.Query()
	if err != nil {
		return Status{}, Wrap("QueryServiceStatusEx", err)
	}

	return fromSvcStatus(status), nil
}

func (w *windowsService) Config() (Config, error) {
	cfg, err := w.s.Config()
	if err != nil {
		return Config{}, Wrap("QueryServiceConfig", err)
	}

	return Config{
		BinaryPath:  BinaryPathOf(cfg.BinaryPathName),
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
	}, nil
}

func (w *windowsService) Start(args ...string) error {
	return Wrap("StartService", w.s.Start(args...))
}

func (w *windowsService) Stop() (Status, error) {
	status, err := w.s.Control(svc.Stop)
	if err != nil {
		return Status{}, Wrap("ControlService", err)
	}

	return fromSvcStatus(status), nil
}

func (w *windowsService) Delete() error {
	return Wrap("DeleteService", w.s.Delete())
}

func (w *windowsService) Close() error {
	return Wrap("CloseServiceHandle", w.s.Close())
}

// ResetAccess revokes BUILTIN\Users and grants start, stop and read to the
// interactive and local service principals, merged into the existing DACL.
func (w *windowsService) ResetAccess() error {
	sd, err := windows.GetSecurityInfo(w.s.Handle, windows.SE_SERVICE, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return Wrap("GetSecurityInfo", err)
	}

	dacl, _, err := sd.DACL()
	if err != nil {
		return Wrap("GetSecurityDescriptorDacl", err)
	}

	users, err := windows.CreateWellKnownSid(windows.WinBuiltinUsersSid)
	if err != nil {
		return Wrap("CreateWellKnownSid", err)
	}

	interactive, err := windows.CreateWellKnownSid(windows.WinInteractiveSid)
	if err != nil {
		return Wrap("CreateWellKnownSid", err)
	}

	localService, err := windows.CreateWellKnownSid(windows.WinLocalServiceSid)
	if err != nil {
		return Wrap("CreateWellKnownSid", err)
	}

	entries := []windows.EXPLICIT_ACCESS{
		explicitAccess(users, windows.REVOKE_ACCESS, 0),
		explicitAccess(interactive, windows.SET_ACCESS, grantedServiceAccess),
		explicitAccess(localService, windows.SET_ACCESS, grantedServiceAccess),
	}

	acl, err := windows.ACLFromEntries(entries, dacl)
	if err != nil {
		return Wrap("SetEntriesInAcl", err)
	}

	err = windows.SetSecurityInfo(w.s.Handle, windows.SE_SERVICE, windows.DACL_SECURITY_INFORMATION, nil, nil, acl, nil)

	return Wrap("SetSecurityInfo", err)
}

func explicitAccess(sid *windows.SID, mode windows.ACCESS_MODE, rights windows.ACCESS_MASK) windows.EXPLICIT_ACCESS {
	return windows.EXPLICIT_ACCESS{
		AccessPermissions: rights,
		AccessMode:        mode,
		Inheritance:       windows.NO_INHERITANCE,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_GROUP,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}
}

func fromSvcStatus(status svc.Status) Status {
	return Status{
		State:     fromSvcState(status.State),
		WaitHint:  time.Duration(status.WaitHint) * time.Millisecond,
		ProcessID: status.ProcessId,
	}
}

func fromSvcState(state svc.State) service.State {
	switch state {
	case svc.Stopped:
		return service.StateStopped
	case svc.StartPending:
		return service.StateStartPending
	case svc.StopPending:
		return service.StateStopPending
	default:
		// Running, paused and continue/pause pending all mean the image is alive.
		return service.StateRunning
	}
}
