package protocol

type PreviewCreateParams struct {
	Project string `json:"project"`
	Path    string `json:"path"`
}

type PreviewCreateResult struct {
	Address string `json:"address"`
	Key     string `json:"key"`
}

type PreviewShutdownParams struct {
	Project string `json:"project"`
	Path    string `json:"path"`
}

type PreviewShutdownResult struct {
	OK      bool `json:"ok"`
	Stopped bool `json:"stopped"`
}

type PreviewListParams struct {
	Project string `json:"project,omitempty"`
}

type PreviewSession struct {
	Key              string `json:"key"`
	Project          string `json:"project"`
	Address          string `json:"address"`
	TaskID           string `json:"task_id"`
	DataPlanePort    int    `json:"data_plane_port"`
	ControlPlanePort int    `json:"control_plane_port"`
	StartedAt        string `json:"started_at"`
}

type PreviewListResult struct {
	Sessions []PreviewSession `json:"sessions"`
}

type PreviewResolveParams struct {
	Project string `json:"project"`
	Path    string `json:"path"`
}

type PreviewResolveResult struct {
	Key string `json:"key"`
}

type PinGetParams struct {
	Project string `json:"project"`
}

type PinSetParams struct {
	Project string `json:"project"`
	Path    string `json:"path"`
}

type PinClearParams struct {
	Project string `json:"project"`
}

type PinResult struct {
	Project string `json:"project"`
	Path    string `json:"path,omitempty"`
	Pinned  bool   `json:"pinned"`
}
