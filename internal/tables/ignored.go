package tables

// Attribute types the nano runtime never sees: assembly metadata,
// debugger plumbing and compiler-internal markers.
var ignored_attribute_names = []string{
	"System.Diagnostics.DebuggableAttribute",
	"System.Diagnostics.DebuggerBrowsableAttribute",
	"System.Diagnostics.DebuggerDisplayAttribute",
	"System.Diagnostics.DebuggerHiddenAttribute",
	"System.Diagnostics.DebuggerNonUserCodeAttribute",
	"System.Diagnostics.DebuggerStepThroughAttribute",
	"System.Diagnostics.ConditionalAttribute",
	"System.Reflection.AssemblyCompanyAttribute",
	"System.Reflection.AssemblyConfigurationAttribute",
	"System.Reflection.AssemblyCopyrightAttribute",
	"System.Reflection.AssemblyDescriptionAttribute",
	"System.Reflection.AssemblyFileVersionAttribute",
	"System.Reflection.AssemblyInformationalVersionAttribute",
	"System.Reflection.AssemblyProductAttribute",
	"System.Reflection.AssemblyTitleAttribute",
	"System.Reflection.AssemblyTrademarkAttribute",
	"System.Reflection.DefaultMemberAttribute",
	"System.Runtime.CompilerServices.CompilationRelaxationsAttribute",
	"System.Runtime.CompilerServices.CompilerGeneratedAttribute",
	"System.Runtime.CompilerServices.ExtensionAttribute",
	"System.Runtime.CompilerServices.InternalsVisibleToAttribute",
	"System.Runtime.CompilerServices.RuntimeCompatibilityAttribute",
	"System.Runtime.InteropServices.ComVisibleAttribute",
	"System.Runtime.InteropServices.GuidAttribute",
	"System.Reflection.DefaultMemberAttribute",
}

func buildIgnoredAttributeSet() map[string]bool {
	set := make(map[string]bool, len(ignored_attribute_names))
	for _, name := range ignored_attribute_names {
		set[name] = true
	}
	return set
}
