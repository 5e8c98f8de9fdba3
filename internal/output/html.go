package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/runner"
	"github.com/crowdprobe/crowdprobe/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Meta             Meta
	Trials           []runner.Result
	TotalProbes      int64
	PeakMeanMs       float64
	PeakMeanLevel    int
	WorstErrorRate   float64
	WorstErrorLevel  int
	HoldFailures     int
	ThresholdSummary *ThresholdSummary
	TrialsJSON       string
	BoxPlot          template.HTML
}

// ThresholdSummary aggregates threshold verdicts for the report.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is one threshold verdict in report form.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Level     int     `json:"level,omitempty"`
	Pass      bool    `json:"pass"`
}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, results []runner.Result, thresholdResults []threshold.Result, meta Meta) error {
	var thresholdSummary *ThresholdSummary
	if len(thresholdResults) > 0 {
		thresholdSummary = &ThresholdSummary{
			Total:   len(thresholdResults),
			Results: make([]ThresholdResultJSON, len(thresholdResults)),
		}
		for i, tr := range thresholdResults {
			thresholdSummary.Results[i] = ThresholdResultJSON{
				Threshold: tr.Threshold.Raw,
				Metric:    tr.Threshold.Metric,
				Aggregate: tr.Threshold.Aggregate,
				Operator:  tr.Threshold.Operator,
				Expected:  tr.Threshold.Value,
				Actual:    tr.Actual,
				Level:     tr.Level,
				Pass:      tr.Pass,
			}
			if tr.Pass {
				thresholdSummary.Passed++
			} else {
				thresholdSummary.Failed++
			}
		}
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Meta:             meta,
		Trials:           results,
		ThresholdSummary: thresholdSummary,
	}
	if !meta.GeneratedAt.IsZero() {
		data.GeneratedAt = meta.GeneratedAt.Format(time.RFC3339)
	}
	for _, res := range results {
		data.TotalProbes += res.Summary.Probes
		data.HoldFailures += res.HoldFailures
		if res.Summary.MeanMs >= data.PeakMeanMs {
			data.PeakMeanMs = res.Summary.MeanMs
			data.PeakMeanLevel = res.Level
		}
		if res.Summary.ErrorRate >= data.WorstErrorRate {
			data.WorstErrorRate = res.Summary.ErrorRate
			data.WorstErrorLevel = res.Level
		}
	}

	if len(results) > 0 {
		trialsJSON, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("failed to marshal trials: %w", err)
		}
		data.TrialsJSON = string(trialsJSON)
		data.BoxPlot = template.HTML(RenderBoxPlot(results, meta))
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatRate": func(rate float64) string {
			return fmt.Sprintf("%.2f", rate*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>crowdprobe Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.warning {
            border-left-color: #f59e0b;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        .boxplot svg {
            width: 100%;
            height: auto;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>crowdprobe Concurrency Interference Report</h1>
            {{if .Meta.Target}}
            <div class="meta" style="margin-top: 5px;">Target: <a href="{{.Meta.Target}}" style="color: white; text-decoration: underline;">{{.Meta.Target}}</a></div>
            {{end}}
            <div class="meta">
                {{if .Meta.RunID}}Run: {{.Meta.RunID}} | {{end}}Generated: {{.GeneratedAt}}{{if .Meta.HoldSeconds}} | Hold: {{formatFloat .Meta.HoldSeconds}}s{{end}}
            </div>
        </header>

        <div class="content">
            {{if .Trials}}
            <!-- Summary Cards -->
            <div class="grid">
                <div class="card">
                    <h3>Levels Tested</h3>
                    <div class="value">{{len .Trials}}</div>
                </div>
                <div class="card">
                    <h3>Total Probes</h3>
                    <div class="value">{{.TotalProbes}}</div>
                </div>
                <div class="card warning">
                    <h3>Peak Mean Latency</h3>
                    <div class="value">{{formatFloat .PeakMeanMs}} ms</div>
                    <div class="subvalue">at N={{.PeakMeanLevel}}</div>
                </div>
                <div class="card error">
                    <h3>Worst Error Rate</h3>
                    <div class="value">{{formatRate .WorstErrorRate}}%</div>
                    <div class="subvalue">at N={{.WorstErrorLevel}}</div>
                </div>
            </div>

            <!-- Latency Distribution -->
            <div class="section">
                <h2>Latency Distribution</h2>
                <div class="chart-container boxplot">
                    {{.BoxPlot}}
                </div>
            </div>

            <!-- Degradation Charts -->
            <div class="section">
                <h2>Degradation by Concurrency Level</h2>

                <div class="chart-container">
                    <h3>Probe Latency (ms)</h3>
                    <div id="latency-chart" class="chart"></div>
                </div>

                <div class="chart-container">
                    <h3>Error Rate (%)</h3>
                    <div id="errors-chart" class="chart"></div>
                </div>
            </div>

            <!-- Per-Level Table -->
            <div class="section">
                <h2>Per-Level Results</h2>
                <table>
                    <thead>
                        <tr>
                            <th>N</th>
                            <th>Probes</th>
                            <th>Mean (ms)</th>
                            <th>StdDev (ms)</th>
                            <th>Min (ms)</th>
                            <th>Max (ms)</th>
                            <th>P50 (ms)</th>
                            <th>P99 (ms)</th>
                            <th>Error Rate</th>
                            <th>Hold Failures</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Trials}}
                        <tr>
                            <td><strong>{{.Level}}</strong></td>
                            <td>{{.Summary.Probes}}</td>
                            <td>{{formatFloat .Summary.MeanMs}}</td>
                            <td>{{formatFloat .Summary.StdDevMs}}</td>
                            <td>{{formatFloat .Summary.MinMs}}</td>
                            <td>{{formatFloat .Summary.MaxMs}}</td>
                            <td>{{formatFloat .Summary.P50Ms}}</td>
                            <td>{{formatFloat .Summary.P99Ms}}</td>
                            <td>{{formatRate .Summary.ErrorRate}}%</td>
                            <td>{{.HoldFailures}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{else}}
            <div class="no-data">No trial results were collected.</div>
            {{end}}

            <!-- Thresholds -->
            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Worst At</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Level}}N={{.Level}}{{else}}-{{end}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">&#10003; PASS</span>
                                {{else}}
                                <span class="badge badge-error">&#10007; FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .Trials}}
    <script>
        const trialsJSON = {{.TrialsJSON}};
        const trials = JSON.parse(trialsJSON);

        if (trials && trials.length > 0) {
            // Trials are plotted at even spacing with N labels, since the
            // swept levels are usually log-spaced.
            const idx = trials.map((t, i) => i);
            const levels = trials.map(t => t.level);
            const levelTicks = (u, splits) => splits.map(s =>
                Number.isInteger(s) && s >= 0 && s < levels.length ? "N=" + levels[s] : "");

            new uPlot({
                title: "Probe Latency by Level",
                width: document.getElementById('latency-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Level", value: (u, v) => v == null ? "" : "N=" + (levels[v] ?? "") },
                    {
                        label: "Mean (ms)",
                        stroke: "#667eea",
                        fill: "rgba(102, 126, 234, 0.1)",
                        width: 2
                    },
                    {
                        label: "P99 (ms)",
                        stroke: "#ef4444",
                        width: 2
                    }
                ],
                axes: [
                    { values: levelTicks },
                    { label: "Latency (ms)" }
                ]
            }, [
                idx,
                trials.map(t => t.summary.mean_latency_ms),
                trials.map(t => t.summary.p99_latency_ms)
            ], document.getElementById('latency-chart'));

            new uPlot({
                title: "Error Rate by Level",
                width: document.getElementById('errors-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Level", value: (u, v) => v == null ? "" : "N=" + (levels[v] ?? "") },
                    {
                        label: "Error Rate (%)",
                        stroke: "#f59e0b",
                        fill: "rgba(245, 158, 11, 0.1)",
                        width: 2
                    }
                ],
                axes: [
                    { values: levelTicks },
                    { label: "Error Rate (%)" }
                ]
            }, [
                idx,
                trials.map(t => t.summary.error_rate * 100)
            ], document.getElementById('errors-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
