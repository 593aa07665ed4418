package descriptor

// documentSchema is the structural gate the raw document must pass
// before any domain rule runs. Top-level and spec-level unknown keys
// are rejected; metadata.annotations stays open for forward compat.
const documentSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["apiVersion", "kind", "spec"],
	"properties": {
		"apiVersion": {"type": "string", "enum": ["paas.bk.tencent.com/v1alpha2"]},
		"kind": {"type": "string", "enum": ["BkApp"]},
		"metadata": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"name": {"type": "string"},
				"annotations": {"type": "object"}
			}
		},
		"spec": {
			"type": "object",
			"additionalProperties": false,
			"required": ["processes"],
			"properties": {
				"build": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"image": {"type": "string"},
						"imagePullPolicy": {"type": "string", "enum": ["Always", "IfNotPresent", "Never"]}
					}
				},
				"processes": {
					"type": "array",
					"items": {
						"type": "object",
						"additionalProperties": false,
						"required": ["name"],
						"properties": {
							"name": {"type": "string"},
							"replicas": {"type": "integer", "minimum": 0},
							"resQuotaPlan": {"type": "string"},
							"command": {"type": "array", "items": {"type": "string"}},
							"args": {"type": "array", "items": {"type": "string"}},
							"procCommand": {"type": "string"},
							"targetPort": {"type": "integer", "minimum": 1, "maximum": 65535},
							"services": {"type": "array", "items": {"$ref": "#/definitions/service"}},
							"probes": {"$ref": "#/definitions/probes"},
							"autoscaling": {"$ref": "#/definitions/autoscaling"}
						}
					}
				},
				"hooks": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"preRelease": {"$ref": "#/definitions/hook"}
					}
				},
				"addons": {
					"type": "array",
					"items": {
						"type": "object",
						"additionalProperties": false,
						"required": ["name"],
						"properties": {
							"name": {"type": "string"},
							"specs": {
								"type": "array",
								"items": {
									"type": "object",
									"additionalProperties": false,
									"required": ["name", "value"],
									"properties": {
										"name": {"type": "string"},
										"value": {"type": "string"}
									}
								}
							},
							"sharedFromModule": {"type": "string"}
						}
					}
				},
				"configuration": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"env": {"type": "array", "items": {"$ref": "#/definitions/envVar"}}
					}
				},
				"envOverlay": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"replicas": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["envName", "process", "count"],
								"properties": {
									"envName": {"type": "string"},
									"process": {"type": "string"},
									"count": {"type": "integer", "minimum": 0}
								}
							}
						},
						"resQuotas": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["envName", "process", "plan"],
								"properties": {
									"envName": {"type": "string"},
									"process": {"type": "string"},
									"plan": {"type": "string"}
								}
							}
						},
						"autoscaling": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["envName", "process", "minReplicas", "maxReplicas"],
								"properties": {
									"envName": {"type": "string"},
									"process": {"type": "string"},
									"minReplicas": {"type": "integer"},
									"maxReplicas": {"type": "integer"},
									"policy": {"type": "string"}
								}
							}
						},
						"envVariables": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["envName", "name", "value"],
								"properties": {
									"envName": {"type": "string"},
									"name": {"type": "string"},
									"value": {"type": "string"}
								}
							}
						},
						"mounts": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["envName", "name", "mountPath", "source"],
								"properties": {
									"envName": {"type": "string"},
									"name": {"type": "string"},
									"mountPath": {"type": "string"},
									"source": {"$ref": "#/definitions/mountSource"}
								}
							}
						}
					}
				},
				"mounts": {
					"type": "array",
					"items": {
						"type": "object",
						"additionalProperties": false,
						"required": ["name", "mountPath", "source"],
						"properties": {
							"name": {"type": "string"},
							"mountPath": {"type": "string"},
							"source": {"$ref": "#/definitions/mountSource"}
						}
					}
				},
				"svcDiscovery": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"bkSaaS": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["bkAppCode"],
								"properties": {
									"bkAppCode": {"type": "string"},
									"moduleName": {"type": "string"}
								}
							}
						}
					}
				},
				"domainResolution": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"nameservers": {"type": "array", "items": {"type": "string"}},
						"hostAliases": {
							"type": "array",
							"items": {
								"type": "object",
								"additionalProperties": false,
								"required": ["ip", "hostnames"],
								"properties": {
									"ip": {"type": "string"},
									"hostnames": {"type": "array", "items": {"type": "string"}}
								}
							}
						}
					}
				},
				"observability": {
					"type": "object",
					"additionalProperties": false,
					"properties": {
						"monitoring": {
							"type": "object",
							"additionalProperties": false,
							"properties": {
								"metrics": {
									"type": "array",
									"items": {
										"type": "object",
										"additionalProperties": false,
										"required": ["process", "serviceName"],
										"properties": {
											"process": {"type": "string"},
											"serviceName": {"type": "string"},
											"path": {"type": "string"},
											"params": {"type": "object"}
										}
									}
								}
							}
						}
					}
				}
			}
		}
	},
	"definitions": {
		"service": {
			"type": "object",
			"additionalProperties": false,
			"required": ["name", "targetPort"],
			"properties": {
				"name": {"type": "string"},
				"targetPort": {"type": "integer", "minimum": 1, "maximum": 65535},
				"protocol": {"type": "string", "enum": ["TCP", "UDP"]},
				"exposedType": {
					"type": "object",
					"additionalProperties": false,
					"required": ["name"],
					"properties": {"name": {"type": "string"}}
				},
				"port": {"type": "integer", "minimum": 1, "maximum": 65535}
			}
		},
		"probes": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"liveness": {"$ref": "#/definitions/probe"},
				"readiness": {"$ref": "#/definitions/probe"},
				"startup": {"$ref": "#/definitions/probe"}
			}
		},
		"probe": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"exec": {
					"type": "object",
					"additionalProperties": false,
					"required": ["command"],
					"properties": {"command": {"type": "array", "items": {"type": "string"}}}
				},
				"httpGet": {
					"type": "object",
					"additionalProperties": false,
					"required": ["port"],
					"properties": {
						"path": {"type": "string"},
						"port": {"type": "integer"},
						"host": {"type": "string"}
					}
				},
				"tcpSocket": {
					"type": "object",
					"additionalProperties": false,
					"required": ["port"],
					"properties": {
						"port": {"type": "integer"},
						"host": {"type": "string"}
					}
				},
				"initialDelaySeconds": {"type": "integer"},
				"timeoutSeconds": {"type": "integer"},
				"periodSeconds": {"type": "integer"},
				"successThreshold": {"type": "integer"},
				"failureThreshold": {"type": "integer"}
			}
		},
		"autoscaling": {
			"type": "object",
			"additionalProperties": false,
			"required": ["minReplicas", "maxReplicas"],
			"properties": {
				"minReplicas": {"type": "integer"},
				"maxReplicas": {"type": "integer"},
				"policy": {"type": "string"}
			}
		},
		"hook": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"command": {"type": "array", "items": {"type": "string"}},
				"args": {"type": "array", "items": {"type": "string"}},
				"procCommand": {"type": "string"}
			}
		},
		"envVar": {
			"type": "object",
			"additionalProperties": false,
			"required": ["name", "value"],
			"properties": {
				"name": {"type": "string"},
				"value": {"type": "string"}
			}
		},
		"mountSource": {
			"type": "object",
			"additionalProperties": false,
			"minProperties": 1,
			"maxProperties": 1,
			"properties": {
				"configMap": {
					"type": "object",
					"additionalProperties": false,
					"required": ["name"],
					"properties": {"name": {"type": "string"}}
				},
				"persistentStorage": {
					"type": "object",
					"additionalProperties": false,
					"required": ["name"],
					"properties": {"name": {"type": "string"}}
				}
			}
		}
	}
}`
