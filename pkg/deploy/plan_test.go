package deploy

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlan_ResolvesSourcesLibrariesAndHelpers(t *testing.T) {
	project := sampleProject(t)
	dev := Device{Path: "/media/pi/CIRCUITPY"}

	plan, err := BuildPlan(project, dev, PlanOptions{
		LibDir:      "lib",
		HelpersDir:  "helpers",
		Helpers:     []string{"install_req.py"},
		CopyHelpers: true,
	})
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"code.py", "requirements.txt", "secrets.py"}, plan.Sources); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"adafruit_io/adafruit_io.py", "adafruit_requests.mpy"}, plan.Libraries); diff != "" {
		t.Fatalf("libraries mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"install_req.py"}, plan.Helpers)
	assert.Equal(t, []string{"code.py", "install_req.py", "lib", "requirements.txt", "secrets.py"}, plan.Managed)
	assert.Equal(t, 6, plan.Total())
}

func TestBuildPlan_NoHelpersWhenDisabled(t *testing.T) {
	plan, err := BuildPlan(sampleProject(t), Device{Path: "/d"}, PlanOptions{
		HelpersDir: "helpers",
		Helpers:    []string{"install_req.py"},
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Helpers)
	assert.False(t, plan.IsManaged("install_req.py"))
	assert.Equal(t, 5, plan.Total())
}

func TestBuildPlan_RootHelpersCountedOnce(t *testing.T) {
	project := newFS(t, map[string]string{
		"code.py":        "x",
		"install_req.py": "helper",
	})

	plan, err := BuildPlan(project, Device{Path: "/d"}, PlanOptions{
		Helpers:     []string{"install_req.py"},
		CopyHelpers: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"code.py"}, plan.Sources)
	assert.Equal(t, []string{"install_req.py"}, plan.Helpers)
	assert.Equal(t, 2, plan.Total())

	steps := BuildCopySteps(plan)
	var targets []string
	for _, st := range steps {
		targets = append(targets, st.Target)
	}
	assert.Equal(t, []string{"code.py", "install_req.py"}, targets)
}

func TestBuildPlan_RootHelpersLeftOutWithNoHelpers(t *testing.T) {
	project := newFS(t, map[string]string{
		"code.py":        "x",
		"install_req.py": "helper",
	})

	plan, err := BuildPlan(project, Device{Path: "/d"}, PlanOptions{Helpers: []string{"install_req.py"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"code.py"}, plan.Sources)
	assert.False(t, plan.IsManaged("install_req.py"))
}

func TestBuildPlan_WithoutLibDir(t *testing.T) {
	project := newFS(t, map[string]string{"code.py": "x"})

	plan, err := BuildPlan(project, Device{Path: "/d"}, PlanOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"code.py"}, plan.Sources)
	assert.Empty(t, plan.Libraries)
	assert.False(t, plan.IsManaged(DeviceLibDir))
}

func TestBuildPlan_RejectsEmptyProject(t *testing.T) {
	project := newFS(t, map[string]string{"README.md": "only docs"})

	_, err := BuildPlan(project, Device{Path: "/d"}, PlanOptions{ProjectDir: "demo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files to deploy")
}

func TestBuildPlan_CustomExclude(t *testing.T) {
	project := newFS(t, map[string]string{
		"code.py":          "x",
		"fonts/big.bdf":    "font",
		"images/logo.bmp":  "img",
		"tests/test_x.py":  "t",
		"boot_out.txt":     bootBanner,
		"data/.keep":       "",
		"requirements.txt": "",
	})

	plan, err := BuildPlan(project, Device{Path: "/d"}, PlanOptions{Exclude: []string{"tests", "*.bmp", ".*"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"code.py", "fonts/big.bdf", "requirements.txt"}, plan.Sources)
	assert.Equal(t, []string{"code.py", "fonts", "requirements.txt"}, plan.Managed)
}

func TestIsExcluded(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{".git", true},
		{"lib/__pycache__", true},
		{"README.md", true},
		{"docs/notes.md", true},
		{"LICENSE", true},
		{"host_scripts", true},
		{"code.py", false},
		{"lib/adafruit_io", false},
		{"System Volume Information", true},
	}

	for _, tc := range cases {
		if got := isExcluded(tc.rel, DefaultExclude); got != tc.want {
			t.Fatalf("isExcluded(%q) = %v, want %v", tc.rel, got, tc.want)
		}
	}
}

func TestPlanString_ListsFiles(t *testing.T) {
	plan, err := BuildPlan(sampleProject(t), Device{Path: "/Volumes/CIRCUITPY"}, PlanOptions{HelpersDir: "helpers"})
	require.NoError(t, err)

	out := plan.String()
	for _, want := range []string{"/Volumes/CIRCUITPY", "code.py", "lib/adafruit_requests.mpy", "5 files"} {
		if !strings.Contains(out, want) {
			t.Fatalf("plan string missing %q:\n%s", want, out)
		}
	}
}
