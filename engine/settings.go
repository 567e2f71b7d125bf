package engine

import "SceneChain-server/models"

// ResolveSettings 依次合并系统默认、项目默认和覆盖设置（按顺序生效），
// 得到单次生成的参数。画幅比例只取自系统或项目
func ResolveSettings(system models.GenerationSettings, project *models.Project, overrides ...*models.SettingsOverride) models.GenerationSettings {
	out := system
	if project != nil {
		if project.AspectRatio != "" {
			out.AspectRatio = project.AspectRatio
		}
		if project.DefaultModel != "" {
			out.Model = project.DefaultModel
		}
		if project.DefaultResolution != "" {
			out.Resolution = project.DefaultResolution
		}
	}
	for _, o := range overrides {
		if o == nil {
			continue
		}
		if o.Model != "" {
			out.Model = o.Model
		}
		if o.Resolution != "" {
			out.Resolution = o.Resolution
		}
		if o.Loop != nil {
			out.Loop = *o.Loop
		}
	}
	return out
}
